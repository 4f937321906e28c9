package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/tenxafrica/intake/internal/attachment"
	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/engine"
	"github.com/tenxafrica/intake/internal/formdef"
	"github.com/tenxafrica/intake/internal/submit"
	"github.com/tenxafrica/intake/internal/validate"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "intakectl",
		Short:         "Inspect intake form definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newPayloadCmd(), newCountriesCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir|file...]",
		Short: "Check form definitions",
		Long: `Parses and validates form definition files. Directories are scanned
for .yaml and .yml files. With no arguments ./forms is checked.`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"./forms"}
	}
	out := cmd.OutOrStdout()

	var errs []error
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			reg, err := formdef.LoadDir(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, def := range reg.All() {
				printForm(out, def)
			}
			continue
		}
		def, err := formdef.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		printForm(out, def)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func printForm(w io.Writer, def *domain.FormDefinition) {
	mode := "webhook"
	if def.Simulate && strings.TrimSpace(def.WebhookURL) == "" {
		mode = "simulated"
	}
	fmt.Fprintf(w, "ok  %s (%d stages, %d fields, %s)\n", def.Slug, def.StageCount(), len(def.Fields()), mode)
}

type payloadOptions struct {
	values   []string
	files    []string
	tracking []string
	country  string
	token    string
}

func newPayloadCmd() *cobra.Command {
	var opts payloadOptions
	cmd := &cobra.Command{
		Use:   "payload <form.yaml>",
		Short: "Print the webhook payload a session would produce",
		Long: `Fills a session from --set, --file and --track flags, walks it through
every stage and prints the JSON body that would be posted to the webhook.
Nothing is sent.

Example:
  intakectl payload forms/contact.yaml --set name=Ada --set email=ada@example.com \
    --set topic=general --set message="We would like a quote" --file brief=./brief.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayload(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.values, "set", "s", nil, "field value as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "file pick as field=path (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.tracking, "track", "t", nil, "tracking parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.country, "country", validate.DefaultCountry, "phone region")
	cmd.Flags().StringVar(&opts.token, "token", "dry-run", "challenge token")
	return cmd
}

// dryRun records the session instead of posting it.
type dryRun struct {
	session *domain.Session
}

func (d *dryRun) Submit(_ context.Context, _ *domain.FormDefinition, s *domain.Session) domain.Result {
	d.session = s
	return domain.Result{Outcome: domain.OutcomeSuccess}
}

func runPayload(cmd *cobra.Command, path string, opts payloadOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	def, err := formdef.LoadFile(path)
	if err != nil {
		return err
	}

	values, err := parsePairs(opts.values)
	if err != nil {
		return fmt.Errorf("--set: %w", err)
	}
	picks, err := parsePairs(opts.files)
	if err != nil {
		return fmt.Errorf("--file: %w", err)
	}
	tracked, err := parsePairs(opts.tracking)
	if err != nil {
		return fmt.Errorf("--track: %w", err)
	}

	rec := &dryRun{}
	eng := engine.New(def, nil, rec, engine.Options{DefaultCountry: opts.country})
	s := eng.NewSession("dry-run", "intakectl")
	for k, v := range tracked {
		s.Tracking[k] = v
	}
	if err := eng.SetChallengeToken(s, opts.token); err != nil {
		return err
	}

	for s.CurrentStage < def.StageCount() {
		stage := def.Stage(s.CurrentStage)
		for _, f := range stage.Fields {
			if err := fillField(eng, s, &f, values, picks); err != nil {
				return err
			}
		}
		if err := eng.Advance(ctx, s); err != nil {
			return fmt.Errorf("stage %q: %w", stage.ID, err)
		}
	}
	if _, err := eng.Submit(ctx, s); err != nil {
		return err
	}

	payload := submit.BuildPayload(def, rec.session, time.Now())
	payload.Attachments, err = attachment.NewEncoder(0).EncodeForm(ctx, def, rec.session)
	if err != nil {
		return err
	}
	data, err := sonic.ConfigStd.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func fillField(eng *engine.Engine, s *domain.Session, f *domain.FieldDefinition, values, picks map[string]string) error {
	if f.Kind == domain.KindFile {
		path, ok := picks[f.Name]
		if !ok {
			return nil
		}
		file, err := readFile(path)
		if err != nil {
			return err
		}
		sel, err := eng.SetFiles(s, f.Name, []domain.File{file})
		if err != nil {
			return err
		}
		if sel.Note != "" {
			return fmt.Errorf("%s: %s", f.Name, sel.Note)
		}
		return nil
	}

	v, ok := values[f.Name]
	if !ok {
		if f.Toggleable {
			return eng.Toggle(s, f.Name, true)
		}
		return nil
	}
	if err := eng.SetValue(s, f.Name, v); err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	if f.Kind == domain.KindPhone {
		return eng.BlurPhone(s, f.Name)
	}
	return nil
}

func readFile(path string) (domain.File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.File{}, err
	}
	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return domain.File{Name: name, MIMEType: mimeType, Size: int64(len(content)), Content: content}, nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%q is not key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func newCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List phone regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tDIAL\tNAME")
			for _, r := range validate.Regions() {
				fmt.Fprintf(tw, "%s\t+%d\t%s\n", r.Code, r.CallingCode, r.Name)
			}
			return tw.Flush()
		},
	}
}
