package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/httpclient"
	"github.com/spf13/cobra"
)

// eventView はイベントの表示用の形。Dataはデコードして出力する。
type eventView struct {
	ID            string    `json:"id" yaml:"id"`
	AggregateID   string    `json:"aggregate_id" yaml:"aggregate_id"`
	AggregateType string    `json:"aggregate_type" yaml:"aggregate_type"`
	EventType     string    `json:"event_type" yaml:"event_type"`
	Version       int64     `json:"version" yaml:"version"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	Data          any       `json:"data,omitempty" yaml:"data,omitempty"`
}

func toEventViews(events []event.Event) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		v := eventView{
			ID:            e.ID,
			AggregateID:   e.AggregateID,
			AggregateType: string(e.AggregateType),
			EventType:     string(e.EventType),
			Version:       e.Version,
			CreatedAt:     e.CreatedAt,
		}
		if len(e.Data) > 0 {
			var data any
			if err := json.Unmarshal(e.Data, &data); err == nil {
				v.Data = data
			}
		}
		views = append(views, v)
	}
	return views
}

func newEventsCommand(opts *options) *cobra.Command {
	var (
		eventType string
		since     string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events [request-id|identity]",
		Short: "管理者としてイベントを参照する",
		Long: `管理者としてイベントを参照します。

引数を指定した場合はそのリクエストIDまたはユーザー識別子のイベントを、
省略した場合は--type/--since/--limitで検索したイベントを表示します。

例:
  docctl events 6f1c...            # 1件の操作の状態遷移
  docctl events --type OperationFailed --since 2026-01-01T00:00:00Z`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()

			var (
				events []event.Event
				err    error
			)
			if len(args) == 1 {
				events, err = c.Events(cmd.Context(), args[0])
			} else {
				q := httpclient.EventQuery{Type: eventType, Limit: limit}
				if since != "" {
					if q.Since, err = time.Parse(time.RFC3339, since); err != nil {
						return fmt.Errorf("--sinceはRFC3339形式で指定してください: %w", err)
					}
				}
				events, err = c.FindEvents(cmd.Context(), q)
			}
			if err != nil {
				return err
			}

			views := toEventViews(events)
			if done, err := formatOutput(cmd.OutOrStdout(), opts.output, views); done {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tAGGREGATE\tVERSION\tTYPE")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.CreatedAt.Format(time.RFC3339), v.AggregateID, v.Version, v.EventType)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "イベントタイプ（例: OperationFailed）")
	cmd.Flags().StringVar(&since, "since", "", "この日時以降のイベントに絞る（RFC3339）")
	cmd.Flags().IntVar(&limit, "limit", 0, "件数の上限")
	return cmd
}
