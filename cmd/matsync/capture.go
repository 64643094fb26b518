package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/jobs"
	"github.com/matsync/matsync/internal/therapy"
)

var captureCmd = &cobra.Command{
	Use:   "capture [transcript...]",
	Short: "Capture a training query, clarify it, and submit it to the coach queue",
	Long: `Capture a training query, clarify it, and submit it to the coach queue.

The transcript goes through a short clarification dialogue before submission.
If the dialogue service is unreachable, the raw transcript is submitted as-is.

Examples:
  matsync capture worked on guard retention
  matsync capture --file session-notes.md
  matsync capture --file competition-plan.pdf --skip`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		skip, _ := cmd.Flags().GetBool("skip")

		transcript := strings.TrimSpace(strings.Join(args, " "))
		if file != "" {
			text, err := readCaptureFile(file)
			if err != nil {
				return err
			}
			if transcript != "" {
				transcript += "\n\n"
			}
			transcript += text
		}
		if transcript == "" {
			return fmt.Errorf("a transcript (arguments or --file) is required")
		}

		deps, err := newAthleteDeps()
		if err != nil {
			return err
		}

		query, therapyContext := transcript, ""
		if !skip {
			query, therapyContext = clarify(cmd, deps, transcript)
		}

		manager := jobs.NewManager(
			deps.client,
			jobs.NewMemoryTracker(),
			&artifact.Writer{Store: deps.store},
			jobs.Options{Notifier: jobs.NotifierFunc(func(msg string) { printStep("%s", msg) })},
		)

		jobID, err := manager.Submit(cmd.Context(), query, therapyContext)
		if err != nil {
			printError("could not submit query: %v", err)
			return err
		}

		printSuccess("Submitted job %s", jobID)
		printStatus("Query", "%s", query)
		return nil
	},
}

func init() {
	captureCmd.Flags().String("file", "", "file with the transcript (.md, .txt, or .pdf)")
	captureCmd.Flags().Bool("skip", false, "skip clarification and submit the transcript verbatim")
}

// clarify runs the therapy dialogue interactively. Any service failure falls
// back to the raw transcript rather than blocking the capture.
func clarify(cmd *cobra.Command, deps *athleteDeps, transcript string) (query, therapyContext string) {
	dialogue := therapy.NewClient(deps.cfg.Therapy.BaseURL, deps.cfg.Queue.AthleteToken)

	session, err := therapy.Begin(cmd.Context(), dialogue, transcript)
	if err != nil {
		if errors.Is(err, therapy.ErrServiceUnavailable) {
			printWarning("dialogue service unavailable, submitting transcript as-is")
		} else {
			printWarning("clarification failed (%v), submitting transcript as-is", err)
		}
		return transcript, ""
	}

	reader := bufio.NewScanner(cmd.InOrStdin())
	for !session.Ready() {
		printStep("%s", session.Question)
		fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
		if !reader.Scan() {
			session.Skip()
			break
		}
		answer := strings.TrimSpace(reader.Text())
		if answer == "" {
			// Empty answer bails out of the dialogue.
			session.Skip()
			break
		}
		if err := session.Answer(cmd.Context(), dialogue, answer); err != nil {
			printWarning("clarification failed (%v), submitting transcript as-is", err)
			session.Skip()
			break
		}
	}
	return session.Query(), session.Context()
}

// readCaptureFile loads a transcript from disk, extracting text from PDFs.
func readCaptureFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		f, r, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening pdf: %w", err)
		}
		defer f.Close()

		var buf bytes.Buffer
		plain, err := r.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("extracting pdf text: %w", err)
		}
		if _, err := buf.ReadFrom(plain); err != nil {
			return "", fmt.Errorf("reading pdf text: %w", err)
		}
		return strings.TrimSpace(buf.String()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
