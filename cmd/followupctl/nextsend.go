package main

import (
	"fmt"
	"strings"
	"time"

	"followup_backend/internal/followups/service"
	"followup_backend/internal/followups/transport"
	"followup_backend/platform/logger"

	"github.com/spf13/cobra"
)

func newNextSendCmd() *cobra.Command {
	var (
		at       string
		restrict bool
		start    string
		end      string
		weekdays string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "next-send",
		Short: "Show when a follow-up qualifying at --at would be sent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			qualifiedAt := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				qualifiedAt = parsed
			}

			var days []string
			for _, d := range strings.Split(weekdays, ",") {
				if d = strings.TrimSpace(d); d != "" {
					days = append(days, d)
				}
			}

			svc := service.New(nil, nil, nil, nil, nil, logger.Discard())
			resp, err := svc.PreviewSendTime(transport.PreviewSendTimeRequest{
				QualifiedAt: qualifiedAt,
				Schedule: transport.ScheduleRequest{
					RestrictToBusinessHours: restrict,
					WindowStart:             start,
					WindowEnd:               end,
					AllowedWeekdays:         days,
					Timezone:                timezone,
				},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "send at:  %s\n", resp.SendAt.Format(time.RFC3339))
			fmt.Fprintf(out, "local:    %s (%s)\n", resp.LocalSendAt, resp.Timezone)
			fmt.Fprintf(out, "deferred: %t\n", resp.Deferred)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "qualification instant (RFC3339), defaults to now")
	cmd.Flags().BoolVar(&restrict, "restrict", true, "restrict to business hours")
	cmd.Flags().StringVar(&start, "window-start", "", "window start HH:MM")
	cmd.Flags().StringVar(&end, "window-end", "", "window end HH:MM")
	cmd.Flags().StringVar(&weekdays, "weekdays", "", "comma separated weekdays, e.g. mon,tue,wed")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone")
	return cmd
}
