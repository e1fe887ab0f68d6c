// platdesc-summary prints the derived layout of a valid platform
// descriptor: memory windows, the device table with roles, and the PCI
// topology. It shares platdesc-validate's exit codes.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/axle-os/platdesc/internal/cli"
	"github.com/axle-os/platdesc/internal/diagnostics"
	"github.com/axle-os/platdesc/internal/platform"
)

func usage() {
	fmt.Fprintf(os.Stderr, `platdesc-summary - print the derived layout of a platform descriptor

USAGE:
    platdesc-summary [OPTIONS] <descriptor.toml>

OPTIONS:
    --version    Show version information
`)
}

func main() {
	version := flag.Bool("version", false, "show version information")
	flag.Usage = usage
	flag.Parse()

	if *version {
		cli.PrintVersion("platdesc-summary", false)
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	opts, err := cli.OptionsFromEnv()
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	p, diags, err := platform.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := diagnostics.Render(os.Stderr, diags, diagnostics.RenderOptions{Color: cli.UseColor(opts)}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if p == nil {
		fmt.Fprintf(os.Stderr, "%s: layout is invalid\n", path)
		os.Exit(1)
	}

	printSummary(p)
}

func printSummary(p *platform.Platform) {
	name := p.Name()
	if name == "" {
		name = "(unnamed platform)"
	}
	fmt.Printf("platform: %s", name)
	if p.Arch() != "" {
		fmt.Printf(" (%s)", p.Arch())
	}
	fmt.Println()

	ram := p.RAM()
	kernPhys, kernVirt := p.KernelImage()
	fmt.Printf("ram:            %s (%s)\n", ram, humanize.IBytes(ram.Size))
	fmt.Printf("linear window:  %s\n", p.LinearMapWindow())
	fmt.Printf("kernel window:  %s\n", p.KernelMapWindow())
	fmt.Printf("kernel image:   phys %#x -> virt %#x\n", kernPhys, kernVirt)
	fmt.Printf("timer:          %s Hz\n", humanize.Comma(int64(p.TimerFrequency())))

	fmt.Println("\nmmio windows:")
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, w := range p.MMIOTable() {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", w.Range, humanize.IBytes(w.Size), w.Label())
	}
	tw.Flush()

	pci := p.PCI()
	fmt.Println("\npci:")
	fmt.Printf("  ecam:       %s (buses 0-%d, %s per bus)\n",
		pci.ECAMWindow, pci.BusEnd, humanize.IBytes(pci.BusStride))
	for _, pr := range pci.Ranges {
		fmt.Printf("  %-10s  %s (%s)\n", pr.Kind, pr.Window, humanize.IBytes(pr.Window.Size))
	}
}
