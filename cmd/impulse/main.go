package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/akmonengine/impulse"
	"github.com/akmonengine/impulse/scene"
	"github.com/akmonengine/impulse/solver"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	steps        int
	dt           float64
	settingsFile string
	envFile      string
	workers      int
	plot         bool
	outFile      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "impulse",
		Short:        "rigid body contact solver playground",
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a scene and print the last solver report",
		Args:  cobra.ExactArgs(1),
		RunE:  runScene,
	}
	runCmd.Flags().IntVar(&steps, "steps", 240, "number of steps")
	runCmd.Flags().Float64Var(&dt, "dt", 1.0/60.0, "timestep")
	runCmd.Flags().StringVar(&settingsFile, "settings", "", "solver settings file (yaml)")
	runCmd.Flags().StringVar(&envFile, "env", "", "environment file")
	runCmd.Flags().IntVar(&workers, "workers", impulse.DEFAULT_WORKERS, "worker goroutines")
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot the energy of every step")

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "print or save the default solver settings",
		Args:  cobra.NoArgs,
		RunE:  writeSettings,
	}
	settingsCmd.Flags().StringVar(&outFile, "out", "", "write to this file instead of stdout")

	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "list available scenes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range scene.Names() {
				s, _ := scene.Lookup(name)
				fmt.Printf("%-10s %s\n", labelStyle.Render(name), s.Description)
			}
		},
	}

	rootCmd.AddCommand(runCmd, settingsCmd, scenesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScene(cmd *cobra.Command, args []string) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	if dt <= 0 {
		return fmt.Errorf("dt must be positive, got %v", dt)
	}

	env, err := loadEnv(envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("settings") {
		env.Settings = settingsFile
	}
	if cmd.Flags().Changed("workers") || env.Workers == 0 {
		env.Workers = workers
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: env.LogLevel}))

	settings := solver.DefaultSettings()
	if env.Settings != "" {
		if settings, err = solver.LoadSettings(env.Settings); err != nil {
			return err
		}
	}

	w, err := scene.Build(args[0],
		impulse.WithSettings(settings),
		impulse.WithWorkers(env.Workers),
		impulse.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	energies := make([]float64, 0, steps)
	var report solver.Report
	for range steps {
		if err := w.StepAsync(dt); err != nil {
			return fmt.Errorf("schedule step: %w", err)
		}
		report = w.Wait()
		energies = append(energies, w.Energy())
	}

	fmt.Println(renderReport(args[0], steps, report, w.Energy()))
	if plot {
		fmt.Println(asciigraph.Plot(energies,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("energy per step")))
	}

	return nil
}

func writeSettings(cmd *cobra.Command, args []string) error {
	settings := solver.DefaultSettings()

	if outFile != "" {
		if err := solver.SaveSettings(outFile, settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		fmt.Printf("settings written to %s\n", outFile)
		return nil
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	fmt.Print(string(data))

	return nil
}
