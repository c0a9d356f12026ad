package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"emailthing/internal/maillist"
	"emailthing/internal/model"
	"emailthing/pkg/config"
)

type listOutput struct {
	Emails         []model.Row    `json:"emails"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	TotalCount     int            `json:"totalCount"`
	NextCursor     *string        `json:"nextCursor"`
}

func newListCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of a mailbox facet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireDB(v)
			if err != nil {
				return err
			}
			mailbox := v.GetString("mailbox")
			if mailbox == "" {
				return fmt.Errorf("--mailbox is required")
			}
			facet, err := maillist.ParseFacet(v.GetString("facet"))
			if err != nil {
				return err
			}
			cursor, err := maillist.DecodeCursor(v.GetString("cursor"))
			if err != nil {
				return err
			}

			logger := newLogger(v)
			defer logger.Sync()

			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, dsn, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			svc := maillist.NewService(store, config.ListConfig{}, logger)
			resp, err := svc.List(ctx, maillist.Request{
				MailboxID:  mailbox,
				Facet:      facet,
				CategoryID: v.GetString("category"),
				Search:     v.GetString("search"),
				Cursor:     cursor,
				PageSize:   v.GetInt("take"),
			})
			if err != nil {
				return err
			}

			var next *string
			if resp.NextCursor != nil {
				token := resp.NextCursor.Encode()
				next = &token
			}

			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(listOutput{
					Emails:         resp.Rows,
					CategoryCounts: resp.CategoryCounts,
					TotalCount:     resp.TotalCount,
					NextCursor:     next,
				})
			}

			fmt.Fprintf(out, "Facet: %s (total %d)\n", facet, resp.TotalCount)
			printRows(out, resp.Rows)
			printCounts(out, resp.CategoryCounts)
			if next != nil {
				fmt.Fprintf(out, "Next cursor: %s\n", *next)
			}
			return nil
		},
	}

	cmd.Flags().String("mailbox", "", "Mailbox id")
	cmd.Flags().String("facet", string(maillist.FacetInbox), "inbox, sent, starred, trash, temp or drafts")
	cmd.Flags().String("category", "", "Category id (temp alias id for the temp facet)")
	cmd.Flags().String("search", "", "Subject substring")
	cmd.Flags().String("cursor", "", "Cursor from a previous page")
	cmd.Flags().Int("take", maillist.DefaultPageSize, "Rows per page")
	cmd.Flags().Bool("json", false, "Print JSON")

	return cmd
}
