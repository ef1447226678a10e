package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/reconcile"
)

type reconcileOutput struct {
	EntryID string `json:"entry_id,omitempty"`
	reconcile.Result
}

func reconcileCommand(a *app) *cobra.Command {
	var (
		entryID   string
		original  string
		corrected string
		editor    string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a corrected set with the detector's and print the correction records",
		Long: `Compare an operator-corrected detection set with the detector's original.

The original comes from a stored entry (--entry), in which case the corrected
set and its correction records are saved, or from a JSON file (--original).
Set files hold a detection set as printed by "rollcount detect", either bare
or under a "set" key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (entryID == "") == (original == "") {
				return errors.New("exactly one of --entry and --original is required")
			}
			corr, err := readSet(corrected)
			if err != nil {
				return err
			}
			r, err := a.reconciler()
			if err != nil {
				return err
			}

			if entryID == "" {
				orig, err := readSet(original)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), reconcileOutput{Result: r.Reconcile(orig, corr, editor, time.Now())})
			}

			st, err := a.store()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			orig, err := st.OriginalSet(ctx, entryID)
			if err != nil {
				return err
			}
			corr = detection.NewSet(detection.MethodManual, orig.ImageWidth, orig.ImageHeight, corr.Detections)
			res := r.Reconcile(orig, corr, editor, time.Now())
			if err := st.SaveCorrection(ctx, entryID, corr, res); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reconcileOutput{EntryID: entryID, Result: res})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&entryID, "entry", "", "stored entry to reconcile against")
	flags.StringVar(&original, "original", "", "JSON file holding the detector's set")
	flags.StringVar(&corrected, "corrected", "", "JSON file holding the corrected set")
	flags.StringVar(&editor, "editor", "unknown", "name recorded on the correction records")
	_ = cmd.MarkFlagRequired("corrected")
	return cmd
}

// setFile accepts a bare set or detect output, which nests it under "set".
type setFile struct {
	detection.Set
	Nested *detection.Set `json:"set"`
}

// readSet loads a set from path. Count and breakdown are recomputed from
// the detections so hand-edited files need not keep them in step.
func readSet(path string) (detection.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return detection.Set{}, errors.Wrapf(err, "read %s", path)
	}
	var f setFile
	if err := json.Unmarshal(data, &f); err != nil {
		return detection.Set{}, errors.Wrapf(err, "parse %s", path)
	}
	s := f.Set
	if f.Nested != nil {
		s = *f.Nested
	}
	if s.Method == "" {
		s.Method = detection.MethodManual
	}
	return detection.NewSet(s.Method, s.ImageWidth, s.ImageHeight, s.Detections).WithDuration(s.Duration), nil
}
