// Command qspiflashctl drives a QSPI NOR flash over Linux spidev: read,
// program, erase, or just report what discovery found.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/dgreave/qspiflash/flash"
	"github.com/dgreave/qspiflash/qspi/spidev"
)

type stdLogger struct{}

func (stdLogger) Debugf(format string, args ...any) { log.Printf("debug: "+format, args...) }
func (stdLogger) Infof(format string, args ...any)  { log.Printf("info: "+format, args...) }
func (stdLogger) Warnf(format string, args ...any)  { log.Printf("warn: "+format, args...) }
func (stdLogger) Errorf(format string, args ...any) { log.Printf("error: "+format, args...) }

func main() {
	dev := flag.String("dev", "/dev/spidev0.0", "spidev node to use")
	cs := flag.Uint("cs", 0, "logical chip-select identifier")
	hz := flag.Uint("hz", 25_000_000, "bus frequency")

	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalln("usage: qspiflashctl [-dev path] [-cs n] [-hz n] <info|read addr size|program addr file|erase addr size>")
	}

	sd, err := spidev.Open(*dev)
	if err != nil {
		log.Fatalln(err)
	}
	defer sd.Close()

	if err := sd.SetFrequency(uint32(*hz)); err != nil {
		log.Fatalln(err)
	}

	d, err := flash.New(flash.Config{
		ChipSelect: uint32(*cs),
		Controller: sd,
		Logger:     stdLogger{},
	})
	if err != nil {
		log.Fatalln(err)
	}

	if err := d.Init(); err != nil {
		log.Fatalln(err)
	}
	defer d.Deinit()

	switch flag.Arg(0) {
	case "info":
		cmdInfo(d)
	case "read":
		cmdRead(d, flag.Args()[1:])
	case "program":
		cmdProgram(d, flag.Args()[1:])
	case "erase":
		cmdErase(d, flag.Args()[1:])
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}

func cmdInfo(d *flash.Device) {
	fmt.Printf("size:        %d bytes\n", d.Size())
	fmt.Printf("erase size:  %d bytes (common)\n", d.GetEraseSize())
	fmt.Printf("read size:   %d bytes\n", d.GetReadSize())
	fmt.Printf("program size: %d bytes\n", d.GetProgramSize())
}

func cmdRead(d *flash.Device, args []string) {
	if len(args) != 2 {
		log.Fatalln("usage: read <addr> <size>")
	}
	addr := parseU64(args[0])
	size := parseU64(args[1])

	buf := make([]byte, size)
	if err := d.Read(addr, buf); err != nil {
		log.Fatalln(err)
	}
	fmt.Print(hex.Dump(buf))
}

func cmdProgram(d *flash.Device, args []string) {
	if len(args) != 2 {
		log.Fatalln("usage: program <addr> <file>")
	}
	addr := parseU64(args[0])

	data, err := os.ReadFile(args[1])
	if err != nil {
		log.Fatalln(err)
	}
	if err := d.Program(addr, data); err != nil {
		log.Fatalln(err)
	}
}

func cmdErase(d *flash.Device, args []string) {
	if len(args) != 2 {
		log.Fatalln("usage: erase <addr> <size>")
	}
	addr := parseU64(args[0])
	size := parseU64(args[1])

	if err := d.Erase(addr, size); err != nil {
		log.Fatalln(err)
	}
}

func parseU64(s string) uint64 {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		log.Fatalln(err)
	}
	return v
}
