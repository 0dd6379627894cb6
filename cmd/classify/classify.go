// Package classify implements the classify subcommand.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/leafnet-go/internal/classifier"
	"github.com/tphakala/leafnet-go/internal/client"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/privacy"
)

// Options holds the flags of the classify command.
type Options struct {
	Server  string        // base URL of a running server, empty classifies in-process
	Timeout time.Duration // remote request timeout
	JSON    bool          // print the prediction as a JSON object
}

// Prediction is the printed result.
type Prediction struct {
	Slot           string  `json:"slot"`
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

// Command creates the classify command for a single local image file.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "classify [slot] [image]",
		Short: "Classify an image file",
		Long: `Classify a single image file with the model loaded in a slot.
Without --server the model is loaded in-process; with it the image is sent
to a running prediction server.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := Run(cmd.Context(), settings, opts, args[0], args[1])
			if err != nil {
				GetLogger().Debug("classification failed", logger.Error(privacy.WrapError(err)))
				return err
			}
			return Print(cmd.OutOrStdout(), p, opts.JSON)
		},
	}

	cmd.Flags().StringVarP(&opts.Server, "server", "s", "", "Base URL of a running prediction server, e.g. http://localhost:5000")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Request timeout when using --server")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the prediction as JSON")

	return cmd
}

// Run classifies the image at path with the model in slot.
func Run(ctx context.Context, settings *conf.Settings, opts *Options, slot, path string) (Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Prediction{}, errors.New(err).
			Component("classify").
			Category(errors.CategoryFileIO).
			Context("operation", "read_image").
			Build()
	}

	if opts.Server != "" {
		return remote(ctx, opts, slot, data)
	}
	return local(ctx, settings, slot, data)
}

func remote(ctx context.Context, opts *Options, slot string, data []byte) (Prediction, error) {
	c, err := client.New(opts.Server, client.WithTimeout(opts.Timeout))
	if err != nil {
		return Prediction{}, err
	}
	defer c.Close()

	p, err := c.Predict(ctx, slot, data)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Slot: slot, PredictedClass: p.PredictedClass, Confidence: p.Confidence}, nil
}

// local loads only the requested slot and runs the same decode and
// inference pipeline the server uses.
func local(ctx context.Context, settings *conf.Settings, slot string, data []byte) (Prediction, error) {
	var slots []classifier.SlotConfig
	for _, s := range classifier.SlotsFromSettings(settings) {
		if s.Name == slot {
			slots = append(slots, s)
		}
	}
	if len(slots) == 0 {
		return Prediction{}, errors.Newf("unknown slot %q, configured slots: %v", slot, settings.SlotNames()).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}

	decoder, err := imaging.NewDecoder(imaging.OptionsFromSettings(&settings.Imaging))
	if err != nil {
		return Prediction{}, err
	}

	registry, err := classifier.Load(ctx, slots,
		classifier.BackendLoader{ONNXLibraryPath: settings.ONNX.SharedLibraryPath},
		classifier.WithInputShape(decoder.Shape()))
	if err != nil {
		return Prediction{}, err
	}
	defer func() { _ = registry.Close() }()

	return classifyWith(ctx, registry, decoder, slot, data)
}

func classifyWith(ctx context.Context, registry *classifier.Registry, decoder *imaging.Decoder, slot string, data []byte) (Prediction, error) {
	tensor, err := decoder.DecodeBytes(data)
	if err != nil {
		return Prediction{}, err
	}

	h, err := registry.Get(slot)
	if err != nil {
		return Prediction{}, err
	}

	res, err := classifier.NewEngine(nil).Infer(ctx, h, tensor)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Slot: slot, PredictedClass: res.Label, Confidence: res.Confidence}, nil
}

// Print writes p to w as a line of text or, with asJSON, a JSON object.
func Print(w io.Writer, p Prediction, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(p)
	}
	_, err := fmt.Fprintf(w, "%s: %s (%.4f)\n", p.Slot, p.PredictedClass, p.Confidence)
	return err
}
