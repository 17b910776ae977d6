// Package probe picks the Wi-Fi driver for the board being built, by build
// tag: pico (CYW43439) or challenger_rp2040 (ESP-AT coprocessor on UART1).
package probe
