package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/reconcile"
	"github.com/ironsheep/rollcount/internal/store"
)

// Export formats.
const (
	formatDataset  = "dataset"
	formatTraining = "training"
)

func exportCommand(a *app) *cobra.Command {
	var (
		out        string
		format     string
		classMode  string
		editedOnly bool
		images     bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored entries as a YOLO dataset or training JSON",
		Long: `Export the stored entries.

The dataset format is a zip holding dataset.yaml, a README and one YOLO
label file per entry, built from the corrected set where there is one.
With --images the source photos are bundled too.

The training format is a JSON array pairing each entry's detector boxes
with the operator's corrections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			mode := a.cfg.Export.ClassMode
			if classMode != "" {
				mode = export.ClassMode(classMode)
			}
			if format != formatDataset && format != formatTraining {
				return errors.Errorf("unknown format %q (want %s or %s)", format, formatDataset, formatTraining)
			}
			if format == formatDataset && !mode.Valid() {
				return errors.Errorf("unknown class mode %q", mode)
			}

			st, err := a.store()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			entries, err := st.Entries(ctx, editedOnly)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, cerr := os.Create(out)
				if cerr != nil {
					return errors.Wrapf(cerr, "create %s", out)
				}
				defer func() { err = multierr.Append(err, f.Close()) }()
				w = f
			}

			if format == formatTraining {
				err = a.writeTraining(ctx, w, st, entries)
			} else {
				err = a.writeDataset(ctx, w, st, entries, mode, images)
			}
			if err != nil {
				return err
			}
			a.log.Info("export written",
				zap.String("format", format),
				zap.Int("entries", len(entries)),
				zap.String("out", out))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&out, "out", "o", "", "output file (default stdout)")
	flags.StringVar(&format, "format", formatDataset, "dataset (zip) or training (JSON)")
	flags.StringVar(&classMode, "class-mode", "", "label classes: single or color (default from export.class_mode)")
	flags.BoolVar(&editedOnly, "edited-only", false, "only export entries an operator corrected")
	flags.BoolVar(&images, "images", false, "bundle the source photos in the dataset")
	return cmd
}

func (a *app) writeDataset(ctx context.Context, w io.Writer, st *store.Store, entries []store.Entry, mode export.ClassMode, images bool) error {
	samples := make([]export.Sample, 0, len(entries))
	for _, e := range entries {
		set, ok, err := st.CorrectedSet(ctx, e.ID)
		if err != nil {
			return err
		}
		if !ok {
			if set, err = st.OriginalSet(ctx, e.ID); err != nil {
				return err
			}
		}
		s := export.Sample{Filename: e.Filename, Set: set}
		if images && e.ImagePath != "" {
			data, err := os.ReadFile(e.ImagePath)
			if err != nil {
				a.log.Warn("image not bundled", zap.String("entry", e.ID), zap.Error(err))
			} else {
				s.Image = data
			}
		}
		samples = append(samples, s)
	}
	return export.WriteDataset(w, samples, mode)
}

// writeTraining reconciles every entry again so the records reflect the
// current corrected set. Unedited entries come out with every box
// unchanged. These are not new corrections, so nothing is counted in the
// metrics.
func (a *app) writeTraining(ctx context.Context, w io.Writer, st *store.Store, entries []store.Entry) error {
	r, err := reconcile.New(a.cfg.Reconcile, a.log)
	if err != nil {
		return err
	}
	out := make([]export.TrainingEntry, 0, len(entries))
	for _, e := range entries {
		original, err := st.OriginalSet(ctx, e.ID)
		if err != nil {
			return err
		}
		corrected, ok, err := st.CorrectedSet(ctx, e.ID)
		if err != nil {
			return err
		}
		if !ok {
			corrected = original
		}
		res := r.Reconcile(original, corrected, "", time.Time{})
		out = append(out, export.NewTrainingEntry(e.ID, e.Filename, e.ImagePath, res))
	}
	return export.WriteTraining(w, out)
}
