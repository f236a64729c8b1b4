package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
)

var (
	editTitle    string
	editDesc     string
	editSlug     string
	editPriority string
	editAddTags  []string
	editRmTags   []string
)

var editCmd = &cobra.Command{
	Use:   "edit [ticket]",
	Short: "Edit ticket fields",
	Long:  "Update the title, description, slug, priority, or tags of a ticket.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editRun(argOrEmpty(args))
	},
}

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editDesc, "desc", "", "New description")
	editCmd.Flags().StringVar(&editSlug, "slug", "", "New slug (must stay unique)")
	editCmd.Flags().StringVar(&editPriority, "priority", "", "New priority: low, medium, high, critical")
	editCmd.Flags().StringSliceVar(&editAddTags, "add-tag", nil, "Tag to add (repeatable)")
	editCmd.Flags().StringSliceVar(&editRmTags, "rm-tag", nil, "Tag to remove (repeatable)")
	rootCmd.AddCommand(editCmd)
}

func editRun(ref string) error {
	if editTitle == "" && editDesc == "" && editSlug == "" && editPriority == "" &&
		len(editAddTags) == 0 && len(editRmTags) == 0 {
		return nil
	}

	var priority models.Priority
	if editPriority != "" {
		var err error
		priority, err = models.ParsePriority(editPriority)
		if err != nil {
			return err
		}
	}
	if editSlug != "" {
		if err := models.ValidateSlug(editSlug); err != nil {
			return err
		}
	}

	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := resolveTicketRef(ctx, r, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would edit ticket %s", shortID(id))
		return nil
	}

	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		if editTitle != "" {
			t.Title = editTitle
		}
		if editDesc != "" {
			t.Description = editDesc
		}
		if editSlug != "" {
			t.Slug = editSlug
		}
		if editPriority != "" {
			t.Priority = priority
		}
		for _, tag := range editAddTags {
			t.Tags = appendUnique(t.Tags, tag)
		}
		for _, tag := range editRmTags {
			t.Tags = removeString(t.Tags, tag)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ui.Success("Updated %s", output.Cyan(t.Slug))
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
