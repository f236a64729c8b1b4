package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var taskTicket string

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks on a ticket",
	Long:  "Add, complete, remove, and list the checklist tasks of a ticket.",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(args[0])
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <seq>",
	Short: "Mark a task as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDoneRun(args[0])
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <seq>",
	Short: "Remove a task from a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskRmRun(args[0])
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tasks of a ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

func init() {
	taskCmd.PersistentFlags().StringVarP(&taskTicket, "ticket", "t", "", "Ticket ID, prefix, or slug (defaults to the active ticket)")
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(taskListCmd)
	rootCmd.AddCommand(taskCmd)
}

func taskTicketID(ctx context.Context, r store.Repository) (string, error) {
	return resolveTicketRef(ctx, r, taskTicket)
}

func parseSeq(arg string) (int, error) {
	seq, err := strconv.Atoi(arg)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("invalid task number %q", arg)
	}
	return seq, nil
}

func taskAddRun(title string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := taskTicketID(ctx, r)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would add task to %s: %s", shortID(id), title)
		return nil
	}

	var seq int
	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		seq = t.AddTask(title).Seq
		return nil
	})
	if err != nil {
		return err
	}
	ui.Success("Added task %d to %s", seq, output.Cyan(t.Slug))
	return nil
}

func taskDoneRun(arg string) error {
	seq, err := parseSeq(arg)
	if err != nil {
		return err
	}
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := taskTicketID(ctx, r)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would complete task %d on %s", seq, shortID(id))
		return nil
	}

	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		return t.CompleteTask(seq)
	})
	if err != nil {
		return err
	}
	done, total := t.TaskProgress()
	ui.Success("Completed task %d on %s (%d/%d done)", seq, output.Cyan(t.Slug), done, total)
	return nil
}

func taskRmRun(arg string) error {
	seq, err := parseSeq(arg)
	if err != nil {
		return err
	}
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := taskTicketID(ctx, r)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would remove task %d from %s", seq, shortID(id))
		return nil
	}

	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		return t.RemoveTask(seq)
	})
	if err != nil {
		return err
	}
	ui.Success("Removed task %d from %s", seq, output.Cyan(t.Slug))
	return nil
}

func taskListRun() error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := taskTicketID(ctx, r)
	if err != nil {
		return err
	}
	t, err := r.Load(ctx, id)
	if err != nil {
		return err
	}

	if len(t.Tasks) == 0 {
		ui.Info("No tasks on %s. Use 'tix task add <title>'.", t.Slug)
		return nil
	}
	for _, task := range t.Tasks {
		box := "[ ]"
		if task.Done {
			box = output.Green("[x]")
		}
		fmt.Fprintf(ui.Out, "%s %2d. %s\n", box, task.Seq, task.Title)
	}
	return nil
}
