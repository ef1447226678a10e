package main

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/imaging"
)

type detectOutput struct {
	EntryID string `json:"entry_id,omitempty"`
	Image   string `json:"image"`
	cascade.Result
}

func detectCommand(a *app) *cobra.Command {
	var (
		save      bool
		annotate  string
		labels    string
		classMode string
		thickness int
	)
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Count the rolls in one photo and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := a.cfg.Export.ClassMode
			if classMode != "" {
				mode = export.ClassMode(classMode)
			}
			if !mode.Valid() {
				return errors.Errorf("unknown class mode %q", mode)
			}

			path := args[0]
			img, err := decodeFile(path)
			if err != nil {
				return err
			}
			pipeline, _, err := a.cascade()
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), img)
			if err != nil {
				return err
			}
			out := detectOutput{Image: path, Result: res}

			if save {
				st, err := a.store()
				if err != nil {
					return err
				}
				abs, err := filepath.Abs(path)
				if err != nil {
					abs = path
				}
				entry, err := st.SaveDetection(cmd.Context(), filepath.Base(path), abs, res.Set)
				if err != nil {
					return err
				}
				out.EntryID = entry.ID
			}
			if annotate != "" {
				drawn := imaging.Annotate(img, res.Set.Overlays(img.Bounds()), thickness)
				if err := imaging.Save(drawn, annotate); err != nil {
					return err
				}
				a.log.Info("annotated image written", zap.String("path", annotate))
			}
			if labels != "" {
				if err := os.WriteFile(labels, []byte(export.Labels(res.Set, mode)), 0o644); err != nil {
					return errors.Wrapf(err, "write labels %s", labels)
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&save, "save", false, "record the result in the database")
	flags.StringVar(&annotate, "annotate", "", "write the photo with numbered boxes to this file")
	flags.StringVar(&labels, "labels", "", "write YOLO labels to this file")
	flags.StringVar(&classMode, "class-mode", "", "label classes: single or color (default from export.class_mode)")
	flags.IntVar(&thickness, "thickness", 2, "box outline thickness in pixels")
	return cmd
}

func decodeFile(path string) (_ image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	img, _, err := imaging.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode output")
}
