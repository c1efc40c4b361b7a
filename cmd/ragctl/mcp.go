package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/corpus-rag/internal/adapters/mcp"
	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve corpus search as MCP tools over stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing
search_documents and ask_corpus. Every call runs as the principal given by
the flags, so results respect that user's department and role.

Example assistant configuration:
  {
    "mcpServers": {
      "corpus": {
        "command": "/usr/local/bin/ragctl",
        "args": ["mcp", "--user-id", "17", "--department-id", "5", "--role-id", "2"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		principal, err := principalFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), false, func(app *bootstrap.App) error {
			server, err := mcp.NewServer(app.Answers, principal)
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), os.Stdin, os.Stdout)
		})
	},
}

func principalFromFlags(cmd *cobra.Command) (domain.Principal, error) {
	userID, err := cmd.Flags().GetInt64("user-id")
	if err != nil {
		return domain.Principal{}, err
	}
	departmentID, err := cmd.Flags().GetInt64("department-id")
	if err != nil {
		return domain.Principal{}, err
	}
	roleID, err := cmd.Flags().GetInt64("role-id")
	if err != nil {
		return domain.Principal{}, err
	}
	if userID <= 0 {
		return domain.Principal{}, errors.New("--user-id is required and must be positive")
	}
	if departmentID < 0 || roleID < 0 {
		return domain.Principal{}, errors.New("--department-id and --role-id must not be negative")
	}
	return domain.Principal{UserID: userID, DepartmentID: departmentID, RoleID: roleID}, nil
}

func init() {
	mcpCmd.Flags().Int64("user-id", 0, "user id recorded in the audit log")
	mcpCmd.Flags().Int64("department-id", domain.WildcardID, "department used for access filtering (0 = shared only)")
	mcpCmd.Flags().Int64("role-id", domain.WildcardID, "role used for access filtering (0 = shared only)")
	rootCmd.AddCommand(mcpCmd)
}
