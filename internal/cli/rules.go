package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/licitahub/atendechat/internal/classify"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules [file]",
		Short: "Validate a classification rule table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				rs := classify.RuleSet{Rules: classify.DefaultRules(), Topics: classify.DefaultTopics()}
				fmt.Printf("built-in table: %d rules, %d topics\n", len(rs.Rules), len(rs.Topics))
				return nil
			}

			rs, err := classify.LoadRules(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d rules, %d topics, all patterns compile\n", args[0], len(rs.Rules), len(rs.Topics))
			return nil
		},
	}
	return cmd
}
