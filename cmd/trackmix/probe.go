package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmix/trackmix-go/internal/decode"
	"github.com/openmix/trackmix-go/internal/logging"
)

var probeFlags struct {
	sampleRate int
}

func init() {
	probeCmd.Flags().IntVar(&probeFlags.sampleRate, "sample-rate", 44100, "decode target sample rate")
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe <audio-file>",
	Short: "Decode an audio file and report its shape",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := decode.DefaultConfig(probeFlags.sampleRate)
		cfg.Logger = logging.Get()
		dec := decode.New(cfg)
		defer dec.Close()

		res, err := dec.Decode(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		min, max := float32(0), float32(0)
		for _, p := range res.Peaks {
			if p.Min < min {
				min = p.Min
			}
			if p.Max > max {
				max = p.Max
			}
		}
		fmt.Printf("%s\n", args[0])
		fmt.Printf("  duration    %.3fs\n", res.Duration)
		fmt.Printf("  frames      %d at %d Hz\n", len(res.Buffer)/2, res.SampleRate)
		fmt.Printf("  peaks       %d buckets, min %.4f max %.4f\n", len(res.Peaks), min, max)
		fmt.Printf("  via worker  %v\n", res.ViaWorker)
		return nil
	},
}
