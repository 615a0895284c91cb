package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/licitahub/atendechat/internal/config"
	"github.com/licitahub/atendechat/internal/store"
)

func newStatsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print chat analytics from the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("no store path configured, nothing to report")
			}

			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return err
			}
			defer db.Close()

			to := time.Now()
			from := to.AddDate(0, 0, -days)
			rep, err := store.NewChatStore(db).Analytics(from, to)
			if err != nil {
				return err
			}

			fmt.Printf("Period: %s — %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
			fmt.Printf("Sessions:       %d (%d closed)\n", rep.Sessions, rep.Closed)
			fmt.Printf("Messages:       %d\n", rep.Messages)
			if rep.RatedSessions > 0 {
				fmt.Printf("Average rating: %.1f (%d rated)\n", rep.AvgRating, rep.RatedSessions)
			}
			if len(rep.ByDepartment) > 0 {
				fmt.Println("By department:")
				depts := make([]string, 0, len(rep.ByDepartment))
				for d := range rep.ByDepartment {
					depts = append(depts, d)
				}
				sort.Strings(depts)
				for _, d := range depts {
					fmt.Printf("  %-16s %d\n", d, rep.ByDepartment[d])
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "reporting window in days")
	return cmd
}
