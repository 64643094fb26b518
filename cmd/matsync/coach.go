package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/reconcile"
)

var coachCmd = &cobra.Command{
	Use:   "coach",
	Short: "Coach-side operations: roster, pending queue, completions, concepts",
}

var coachRosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List the athlete roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newCoachDeps()
		if err != nil {
			return err
		}
		athletes, err := deps.client.Roster(cmd.Context())
		if err != nil {
			return err
		}
		if len(athletes) == 0 {
			printStatus("Roster", "empty")
			return nil
		}
		for _, a := range athletes {
			printStatus(a.Name(), "%s", a.DiscordID)
		}
		return nil
	},
}

var coachRosterAddCmd = &cobra.Command{
	Use:   "add <discord-id>",
	Short: "Add an athlete to the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		deps, err := newCoachDeps()
		if err != nil {
			return err
		}
		if err := deps.client.AddAthlete(cmd.Context(), args[0], name); err != nil {
			return err
		}
		printSuccess("Added %s", args[0])
		return nil
	},
}

var coachPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List unclaimed jobs across the roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newCoachDeps()
		if err != nil {
			return err
		}
		list, err := deps.client.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			printStatus("Pending", "none")
			return nil
		}
		for _, j := range list {
			printStatus(j.AthleteID, "%s  %s", j.ID, j.QueryText)
		}
		return nil
	},
}

var coachCompleteCmd = &cobra.Command{
	Use:   "complete <job-id>",
	Short: "Claim a job and deliver its research article",
	Long: `Claim a job and deliver its research article.

The article is read from --article (a markdown file). Claim and complete are
not one transaction: if the claim was lost to another actor, completion is
still attempted and its outcome is what counts.

Examples:
  matsync coach complete 4f1c... --article research.md
  matsync coach complete 4f1c... --fail "model timeout"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		articlePath, _ := cmd.Flags().GetString("article")
		failMsg, _ := cmd.Flags().GetString("fail")
		sessionID, _ := cmd.Flags().GetString("session")

		if articlePath == "" && failMsg == "" {
			return fmt.Errorf("one of --article or --fail is required")
		}

		completion := queue.Completion{Error: failMsg, RLMSessionID: sessionID}
		if articlePath != "" {
			data, err := os.ReadFile(articlePath)
			if err != nil {
				return fmt.Errorf("reading article: %w", err)
			}
			completion.Article = string(data)
		}

		deps, err := newCoachDeps()
		if err != nil {
			return err
		}

		err = deps.client.CompleteAfterClaim(cmd.Context(), args[0], completion)
		var qerr *queue.Error
		if errors.As(err, &qerr) && qerr.Kind == queue.KindPartial {
			printWarning("%v", err)
			err = nil
		}
		if err != nil {
			return err
		}
		printSuccess("Completed job %s", args[0])
		return nil
	},
}

var coachSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull athlete summaries and pending queries into the coach vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newCoachDeps()
		if err != nil {
			return err
		}
		sync := reconcile.NewCoachSync(deps.client, deps.store, nil)
		report, err := sync.Pull(cmd.Context())
		if err != nil {
			printWarning("sync finished with errors: %v", err)
		}
		printSuccess("Sync: %s", report)
		return nil
	},
}

var coachConceptsPushCmd = &cobra.Command{
	Use:   "push-concepts <file.json>",
	Short: "Push concept graph nodes for an athlete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		athleteID, _ := cmd.Flags().GetString("athlete")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading concepts file: %w", err)
		}
		var concepts []queue.Concept
		if err := json.Unmarshal(data, &concepts); err != nil {
			return fmt.Errorf("parsing concepts file: %w", err)
		}

		deps, err := newCoachDeps()
		if err != nil {
			return err
		}
		stats, err := deps.client.PushConcepts(cmd.Context(), athleteID, concepts)
		if err != nil {
			return err
		}
		printSuccess("Pushed concepts: %d created, %d updated", stats.Created, stats.Updated)
		return nil
	},
}

func init() {
	coachRosterAddCmd.Flags().String("name", "", "display name for the athlete")
	coachCompleteCmd.Flags().String("article", "", "markdown file with the research article")
	coachCompleteCmd.Flags().String("fail", "", "fail the job with this error message instead")
	coachCompleteCmd.Flags().String("session", "", "rlm session id to attach")
	coachConceptsPushCmd.Flags().String("athlete", "", "athlete id to scope the concepts to (empty = shared)")

	coachRosterCmd.AddCommand(coachRosterAddCmd)
	coachCmd.AddCommand(coachRosterCmd, coachPendingCmd, coachCompleteCmd, coachSyncCmd, coachConceptsPushCmd)
}
