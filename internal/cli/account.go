package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// secretFlag はパスワードを--secretまたはDOCGATE_SECRETから読む。
func secretFlag(cmd *cobra.Command, secret *string) {
	cmd.Flags().StringVar(secret, "secret", os.Getenv("DOCGATE_SECRET"), "パスワード（DOCGATE_SECRETでも指定可）")
}

func newRegisterCommand(opts *options) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "register <identity>",
		Short: "一般ユーザーとして登録する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Register(cmd.Context(), args[0], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "登録しました: %s\n", args[0])
			return nil
		},
	}
	secretFlag(cmd, &secret)
	return cmd
}

func newLoginCommand(opts *options) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "login <identity>",
		Short: "ログインしてトークンを表示する",
		Long: `ログインしてトークンを表示します。

例:
  export DOCGATE_TOKEN=$(docctl login alice --secret s3cret)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := opts.client().Login(cmd.Context(), args[0], secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	secretFlag(cmd, &secret)
	return cmd
}

func newAddUserCommand(opts *options) *cobra.Command {
	var secret, role string
	cmd := &cobra.Command{
		Use:   "add-user <identity>",
		Short: "管理者としてユーザーを追加する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().AddUser(cmd.Context(), args[0], secret, role); err != nil {
				return err
			}
			if role == "" {
				role = "user"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "追加しました: %s (%s)\n", args[0], role)
			return nil
		},
	}
	secretFlag(cmd, &secret)
	cmd.Flags().StringVar(&role, "role", "", "ロール: admin, user（省略時はuser）")
	return cmd
}

func newUsersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "管理者として全ユーザーを一覧表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := opts.client().ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := formatOutput(cmd.OutOrStdout(), opts.output, users); done {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tROLE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\n", u.Identity, u.Role)
			}
			return w.Flush()
		},
	}
}
