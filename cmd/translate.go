package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

type translateOptions struct {
	file          string
	note          string
	presetID      string
	novelID       string
	model         string
	reasoning     bool
	showReasoning bool
}

func newTranslateCmd() *cobra.Command {
	var opts translateOptions
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a chapter from a file or stdin and stream the result to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			return runTranslate(cmd, app, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "source file (default stdin)")
	cmd.Flags().StringVar(&opts.note, "note", "", "extra instructions appended to the system prompt")
	cmd.Flags().StringVar(&opts.presetID, "preset", "", "preset id to translate with")
	cmd.Flags().StringVar(&opts.novelID, "novel", "", "novel id used to pick a novel-specific preset")
	cmd.Flags().StringVar(&opts.model, "model", "", "override the preset's model")
	cmd.Flags().BoolVar(&opts.reasoning, "reasoning", false, "request reasoning output from the model")
	cmd.Flags().BoolVar(&opts.showReasoning, "show-reasoning", false, "print reasoning to stderr while streaming")
	return cmd
}

func runTranslate(cmd *cobra.Command, app App, opts translateOptions) error {
	translator := app.Translator()
	if translator == nil {
		return errors.New("translator is not configured")
	}

	source, err := readSource(cmd, opts.file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(source) == "" {
		return translate.ErrEmptySource
	}

	settings, err := resolveSettings(cmd, app, opts)
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	var writeErr error
	session, err := translator.Translate(cmd.Context(), translate.Request{
		Source:   source,
		Note:     opts.note,
		Settings: settings,
	}, func(evt translate.Event) {
		switch evt.Type {
		case translate.EventContent:
			if _, werr := io.WriteString(out, evt.Text); werr != nil && writeErr == nil {
				writeErr = werr
			}
		case translate.EventReasoning:
			if opts.showReasoning {
				_, _ = io.WriteString(errOut, evt.Text)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}

	snap := session.Snapshot()
	app.Logger().Debug("translation complete", zap.String("model", settings.Model), zap.Int("tokens", snap.Tokens))
	_, err = fmt.Fprintf(errOut, "\n%d tokens in %s\n", snap.Tokens, translate.FormatElapsed(snap.ElapsedSeconds))
	return err
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open source: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(b), nil
}

func resolveSettings(cmd *cobra.Command, app App, opts translateOptions) (library.Settings, error) {
	settings := presets.Defaults()
	if svc := app.Presets(); svc != nil {
		resolved, err := svc.Resolve(cmd.Context(), opts.presetID, opts.novelID)
		if err != nil {
			return library.Settings{}, fmt.Errorf("resolve preset: %w", err)
		}
		settings = resolved
	}
	if opts.model != "" {
		settings.Model = opts.model
	}
	if cmd.Flags().Changed("reasoning") {
		settings.Reasoning = opts.reasoning
	}
	if err := presets.Validate(settings); err != nil {
		return library.Settings{}, err
	}
	return settings, nil
}
