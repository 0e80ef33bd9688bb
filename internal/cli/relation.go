package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/client"
)

type relationOptions struct {
	server    string
	apiKey    string
	requester string
}

// NewRelationCommand groups the commands that talk to a running server.
func NewRelationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &relationOptions{}

	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Query and edit relations on a running server",
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "base URL of the relations API")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "API key for write commands")
	cmd.PersistentFlags().StringVar(&opts.requester, "requester", "", "identity recorded as creator")

	newClient := func() *client.Client {
		return client.New(opts.server, client.WithAPIKey(opts.apiKey), client.WithRequester(opts.requester))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <relation-id>",
		Short: "Show one relation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := newClient().GetRelation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd).Print(rel, func(p *printer) {
				printRelation(p, rel, "")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <eprint>",
		Short: "List the active relations of an e-print, e.g. 1234.56789v1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ePrint, err := relations.SplitEPrint(args[0])
			if err != nil {
				return err
			}
			rels, err := newClient().ListActive(cmd.Context(), ePrint)
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd).Print(rels, func(p *printer) {
				for _, rel := range rels {
					printRelation(p, rel, "")
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "log <eprint>",
		Short: "Show every relation ever recorded for an e-print",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ePrint, err := relations.SplitEPrint(args[0])
			if err != nil {
				return err
			}
			entries, err := newClient().Log(cmd.Context(), ePrint)
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd).Print(entries, func(p *printer) {
				for _, e := range entries {
					printRelation(p, e.Relation, e.State)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "lineage <relation-id>",
		Short: "Show the chain a relation belongs to, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newClient().Lineage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd).Print(entries, func(p *printer) {
				for _, e := range entries {
					printRelation(p, e.Relation, e.State)
				}
			})
		},
	})

	var in relations.RelationInput
	add := &cobra.Command{
		Use:   "add <eprint>",
		Short: "Record a new relation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ePrint, err := relations.SplitEPrint(args[0])
			if err != nil {
				return err
			}
			rel, err := newClient().Create(cmd.Context(), ePrint, in)
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd).Print(rel, func(p *printer) {
				printRelation(p, rel, "")
			})
		},
	}
	add.Flags().StringVar(&in.ResourceType, "type", "DOI", "resource type")
	add.Flags().StringVar(&in.ResourceID, "id", "", "resource identifier")
	add.Flags().StringVar(&in.Description, "description", "", "free text description")
	cmd.AddCommand(add)

	return cmd
}

func printRelation(p *printer, rel relations.Relation, state string) {
	fields := []string{rel.Identifier, rel.RelationType, rel.EPrint.String(), rel.Resource.ResourceType + ":" + rel.Resource.Identifier}
	if state != "" {
		fields = append(fields, state)
	}
	if rel.Description != "" {
		fields = append(fields, rel.Description)
	}
	p.Linef("%s", strings.Join(fields, "\t"))
}
