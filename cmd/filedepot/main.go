package main

import (
	"fmt"
	"os"

	"filedepot/internal/app"
	"filedepot/internal/config"
	"filedepot/internal/core"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddFile", "Grant").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// login creates the app and resolves the --user flag into a session.
func login(cmd *cobra.Command, operation string) (*app.App, *core.Session, error) {
	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		return nil, nil, fmt.Errorf("--user is required")
	}

	a, err := newApp(operation)
	if err != nil {
		return nil, nil, err
	}

	sess, err := a.Login(username)
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("resolving user: %w", err)
	}
	return a, sess, nil
}

// parseScopes converts scope arguments like "file:view" to Scope values.
func parseScopes(raw []string) ([]core.Scope, error) {
	scopes := make([]core.Scope, 0, len(raw))
	for _, r := range raw {
		scope, err := core.ParseScope(r)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// completeItemNames offers stored item names for the first positional
// argument, backed by the suggestion query.
func completeItemNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	a, err := newApp("Suggest")
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer a.Close()

	names, err := a.Suggest(toComplete)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// printTree renders the tree depth-first with two-space indentation.
// Highlighted nodes carry a trailing marker.
func printTree(t *core.Tree) {
	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		node := t.Node(idx)
		marker := ""
		if node.Highlighted {
			marker = "  <--"
		}
		kind := " "
		if node.Item.Kind == core.KindFolder {
			kind = "/"
		}
		for i := 0; i < depth; i++ {
			fmt.Print("  ")
		}
		fmt.Printf("%s%s%s\n", node.Item.DisplayName, kind, marker)
		for _, child := range t.Children(idx) {
			walk(child, depth+1)
		}
	}
	for _, root := range t.Roots() {
		walk(root, 0)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filedepot",
	Short: "Hierarchical file store with per-user permissions",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Blob Root: %s\n", cfg.Blob.Root)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Register a new user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")

		a, err := newApp("AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddUser(args[0], admin)
		if err != nil {
			return fmt.Errorf("adding user: %w", err)
		}

		role := "user"
		if admin {
			role = "administrator"
		}
		fmt.Printf("Created %s %q (id %d)\n", role, args[0], id)
		return nil
	},
}

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		a, sess, err := login(cmd, "CreateFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Mkdir(sess, args[0], parent); err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}

		fmt.Printf("Created folder %q\n", args[0])
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add NAME SRCPATH",
	Short: "Store a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		a, sess, err := login(cmd, "AddFile")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.AddFile(sess, args[0], args[1], parent); err != nil {
			return fmt.Errorf("adding file: %w", err)
		}

		fmt.Printf("Added file %q\n", args[0])
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List visible items as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.Tree(sess)
		if err != nil {
			return fmt.Errorf("listing items: %w", err)
		}

		if tree.Len() == 0 {
			fmt.Println("No visible items.")
			return nil
		}
		printTree(tree)
		return nil
	},
}

// cat command
var catCmd = &cobra.Command{
	Use:               "cat NAME",
	Short:             "Print a file's content",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "ReadFile")
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.ReadFile(sess, args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		os.Stdout.Write(data)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:               "download NAME DEST",
	Short:             "Save a file's content to a local path",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "Download")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Download(sess, args[0], args[1]); err != nil {
			return fmt.Errorf("downloading file: %w", err)
		}

		fmt.Printf("Saved %q to %s\n", args[0], args[1])
		return nil
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:               "rename OLD NEW",
	Short:             "Rename an item",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "Rename")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Rename(sess, args[0], args[1]); err != nil {
			return fmt.Errorf("renaming: %w", err)
		}

		fmt.Printf("Renamed %q to %q\n", args[0], args[1])
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:               "rm NAME",
	Short:             "Delete a file",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "DeleteFile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveFile(sess, args[0]); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}

		fmt.Printf("Deleted file %q\n", args[0])
		return nil
	},
}

// rmdir command
var rmdirCmd = &cobra.Command{
	Use:               "rmdir NAME",
	Short:             "Delete an empty folder",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "DeleteFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveFolder(sess, args[0]); err != nil {
			return fmt.Errorf("deleting folder: %w", err)
		}

		fmt.Printf("Deleted folder %q\n", args[0])
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Highlight items whose name contains QUERY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "Search")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, matches, err := a.Search(sess, args[0])
		if err != nil {
			return fmt.Errorf("searching: %w", err)
		}

		if len(matches) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		printTree(tree)
		fmt.Printf("\n%d match(es)\n", len(matches))
		return nil
	},
}

// grant command
var grantCmd = &cobra.Command{
	Use:   "grant USERNAME SCOPE...",
	Short: "Grant scopes to a user, globally or on one item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, _ := cmd.Flags().GetString("item")

		scopes, err := parseScopes(args[1:])
		if err != nil {
			return err
		}

		a, sess, err := login(cmd, "Grant")
		if err != nil {
			return err
		}
		defer a.Close()

		var report *core.GrantReport
		if item == "" {
			report, err = a.GrantGlobal(sess, args[0], scopes)
		} else {
			report, err = a.GrantItem(sess, item, args[0], scopes)
		}
		if err != nil {
			return fmt.Errorf("granting: %w", err)
		}

		fmt.Println(report.Summary())
		return nil
	},
}

// revoke command
var revokeCmd = &cobra.Command{
	Use:   "revoke USERNAME SCOPE...",
	Short: "Revoke scopes from a user, globally or on one item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, _ := cmd.Flags().GetString("item")

		scopes, err := parseScopes(args[1:])
		if err != nil {
			return err
		}

		a, sess, err := login(cmd, "Revoke")
		if err != nil {
			return err
		}
		defer a.Close()

		var report *core.GrantReport
		if item == "" {
			report, err = a.RevokeGlobal(sess, args[0], scopes)
		} else {
			report, err = a.RevokeItem(sess, item, args[0], scopes)
		}
		if err != nil {
			return fmt.Errorf("revoking: %w", err)
		}

		fmt.Println(report.Summary())
		return nil
	},
}

// perms command
var permsCmd = &cobra.Command{
	Use:   "perms",
	Short: "List global grants per user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "Perms")
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.Perms(sess)
		if err != nil {
			return fmt.Errorf("listing grants: %w", err)
		}

		if len(grants) == 0 {
			fmt.Println("No grants issued.")
			return nil
		}
		for _, g := range grants {
			fmt.Printf("%-20s %s\n", g.Username, g.Scope)
		}
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove blobs no file references",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := login(cmd, "Sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.Sweep(sess)
		if err != nil {
			return fmt.Errorf("sweeping: %w", err)
		}

		fmt.Printf("Removed %d orphan blob(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("user", "u", "", "Acting username")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// user subcommands
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Bool("admin", false, "Create the user as an administrator")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(mkdirCmd)
	mkdirCmd.Flags().StringP("parent", "p", "", "Parent folder name (root when empty)")
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("parent", "p", "", "Parent folder name (root when empty)")
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().StringP("item", "i", "", "Restrict the grant to one item")
	rootCmd.AddCommand(revokeCmd)
	revokeCmd.Flags().StringP("item", "i", "", "Restrict the revoke to one item")
	rootCmd.AddCommand(permsCmd)
	rootCmd.AddCommand(sweepCmd)
}
