package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	trackmix "github.com/openmix/trackmix-go"
)

var playFlags struct {
	sampleRate int
	duration   float64
	preset     string
	volume     float64
}

func init() {
	playCmd.Flags().IntVar(&playFlags.sampleRate, "sample-rate", 0, "playback sample rate (0 = project setting)")
	playCmd.Flags().Float64Var(&playFlags.duration, "duration", 0, "stop after this many seconds (0 = play until interrupted)")
	playCmd.Flags().StringVar(&playFlags.preset, "preset", "balanced", "scheduler preset: reliable|balanced|responsive|tight")
	playCmd.Flags().Float64Var(&playFlags.volume, "volume", 1.0, "master volume scalar")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <project.json>",
	Short: "Play a project live until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proj, err := trackmix.LoadProject(args[0])
		if err != nil {
			return err
		}
		rate := playFlags.sampleRate
		if rate == 0 {
			rate = proj.SampleRate
		}
		if rate == 0 {
			rate = 44100
		}
		pl, err := trackmix.NewPlayer(rate, trackmix.WithSchedulerPreset(playFlags.preset))
		if err != nil {
			return err
		}
		defer pl.Close()
		pl.SetMasterVolume(playFlags.volume)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := pl.Load(ctx, proj); err != nil {
			return err
		}

		events := pl.Watch()
		if err := pl.Play(); err != nil {
			return err
		}

		var timeout <-chan time.Time
		if playFlags.duration > 0 {
			timeout = time.After(time.Duration(playFlags.duration * float64(time.Second)))
		}
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\ninterrupted")
				pl.Stop()
				return nil
			case <-timeout:
				fmt.Println("\ndone")
				pl.Stop()
				return nil
			case ev := <-events:
				printEvent(ev)
			case <-ticker.C:
				fmt.Printf("\rposition %7.2fs", pl.Position())
			}
		}
	},
}

func printEvent(ev trackmix.PlaybackEvent) {
	switch ev.Kind {
	case trackmix.EventStarted:
		fmt.Printf("playing from %.2fs\n", ev.Pos)
	case trackmix.EventPaused:
		fmt.Printf("paused at %.2fs\n", ev.Pos)
	case trackmix.EventSeeked:
		fmt.Printf("seeked to %.2fs\n", ev.Pos)
	case trackmix.EventStopped:
		fmt.Println("stopped")
	}
}
