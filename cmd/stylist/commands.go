package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stylist-dev/stylist/internal/config"
	"github.com/stylist-dev/stylist/internal/filesync"
	"github.com/stylist-dev/stylist/internal/profile"
	"github.com/stylist-dev/stylist/internal/storage"
)

// --- profiles ---

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage writing profiles on the running daemon",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := fetchConfig(cmd.Context())
		if err != nil {
			return err
		}

		if len(cfg.List) == 0 {
			fmt.Println("no profiles")
			return nil
		}
		for _, p := range cfg.List {
			marker := " "
			if p.ID == cfg.ActiveProfileID {
				marker = "*"
			}
			topics := make([]string, 0, len(p.Evolving.Topics))
			for _, t := range p.Evolving.Topics {
				topics = append(topics, t.Name)
			}
			fmt.Printf("%s %-14s %-36s tone=%-12s uses=%-4d %s\n",
				marker, p.Name, p.ID, p.Tone, p.Evolving.UsageCount, strings.Join(topics, ","))
		}
		return nil
	},
}

var profilesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		persona, _ := cmd.Flags().GetString("persona")
		tone, _ := cmd.Flags().GetString("tone")
		guidelines, _ := cmd.Flags().GetStringArray("guideline")

		if name == "" {
			return fmt.Errorf("--name is required")
		}
		if persona == "" {
			persona = name
		}
		if tone == "" {
			tone = "neutral"
		}
		if guidelines == nil {
			guidelines = []string{}
		}

		cfg, client, err := fetchConfig(cmd.Context())
		if err != nil {
			return err
		}

		p := profile.Profile{
			ID:              uuid.New().String(),
			Name:            name,
			Persona:         persona,
			Tone:            tone,
			StyleGuidelines: guidelines,
			Evolving:        profile.EvolvingProfile{Topics: []profile.Topic{}},
		}
		cfg.List = append(cfg.List, p)

		if err := pushConfig(cmd.Context(), client, cfg); err != nil {
			return err
		}
		printSuccess("Added profile %s (%s)", p.Name, p.ID)
		return nil
	},
}

var profilesUseCmd = &cobra.Command{
	Use:   "use <id-or-name>",
	Short: "Select the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := fetchConfig(cmd.Context())
		if err != nil {
			return err
		}

		p, err := resolveProfile(cfg, args[0])
		if err != nil {
			return err
		}
		cfg.ActiveProfileID = p.ID

		if err := pushConfig(cmd.Context(), client, cfg); err != nil {
			return err
		}
		printSuccess("Active profile is now %s", p.Name)
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <id-or-name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := fetchConfig(cmd.Context())
		if err != nil {
			return err
		}

		p, err := resolveProfile(cfg, args[0])
		if err != nil {
			return err
		}

		idx := cfg.FindProfile(p.ID)
		cfg.List = append(cfg.List[:idx], cfg.List[idx+1:]...)
		if cfg.ActiveProfileID == p.ID {
			cfg.ActiveProfileID = ""
		}

		if err := pushConfig(cmd.Context(), client, cfg); err != nil {
			return err
		}
		printSuccess("Deleted profile %s", p.Name)
		return nil
	},
}

func init() {
	profilesAddCmd.Flags().String("name", "", "profile name")
	profilesAddCmd.Flags().String("persona", "", "persona description")
	profilesAddCmd.Flags().String("tone", "", "tone (e.g. professional, casual)")
	profilesAddCmd.Flags().StringArray("guideline", nil, "style guideline (repeatable)")

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesAddCmd)
	profilesCmd.AddCommand(profilesUseCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
}

func fetchConfig(ctx context.Context) (profile.Config, *apiClient, error) {
	client, err := newAPIClient()
	if err != nil {
		return profile.Config{}, nil, err
	}
	resp, err := client.get(ctx, "/profiles")
	if err != nil {
		return profile.Config{}, nil, err
	}
	var cfg profile.Config
	if err := decodeJSON(resp, &cfg); err != nil {
		return profile.Config{}, nil, err
	}
	return cfg, client, nil
}

func pushConfig(ctx context.Context, client *apiClient, cfg profile.Config) error {
	resp, err := client.post(ctx, "/profiles", cfg)
	if err != nil {
		return err
	}
	var result map[string]any
	return decodeJSON(resp, &result)
}

func resolveProfile(cfg profile.Config, idOrName string) (profile.Profile, error) {
	if idx := cfg.FindProfile(idOrName); idx >= 0 {
		return cfg.List[idx], nil
	}
	for _, p := range cfg.List {
		if strings.EqualFold(p.Name, idOrName) {
			return p, nil
		}
	}
	return profile.Profile{}, fmt.Errorf("no profile with id or name %q", idOrName)
}

// --- export / import / reset ---
//
// These operate directly on local storage so they work without a running
// daemon. Run them while the daemon is stopped; SQLite serializes
// concurrent access but the daemon's in-memory cache will not see the
// change until restart.

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the profile collection to the sync file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		channel, cleanup, err := localChannel(file)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := channel.Export(); err != nil {
			return err
		}
		printSuccess("Exported profiles")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Read the sync file into the profile collection",
	Long: `Read the sync file into the profile collection.

By default the file replaces the local collection (one-way mirror).
With --merge, local and file copies are reconciled: profiles are matched
by id, the copy with the higher usage count wins, and nothing local is
ever deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		mergeMode, _ := cmd.Flags().GetBool("merge")

		channel, cleanup, err := localChannel(file)
		if err != nil {
			return err
		}
		defer cleanup()

		mode := filesync.ModeReplace
		if mergeMode {
			mode = filesync.ModeMerge
		}
		if err := channel.Import(mode); err != nil {
			return err
		}
		printSuccess("Imported profiles (%s)", mode)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace all profiles with the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("this discards all profiles; pass --yes to confirm")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		manager := profile.NewManager(store)
		if err := manager.Reset(); err != nil {
			return err
		}
		printSuccess("Profiles reset to defaults")
		return nil
	},
}

func init() {
	exportCmd.Flags().String("file", "", "sync file path (default from config)")
	importCmd.Flags().String("file", "", "sync file path (default from config)")
	importCmd.Flags().Bool("merge", false, "merge with local profiles instead of replacing them")
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
}

func localChannel(fileOverride string) (*filesync.Channel, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Sync.File
	if fileOverride != "" {
		path = fileOverride
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	manager := profile.NewManager(store)
	channel := filesync.New(manager, path,
		filesync.WithStorageLocation(cfg.Sync.StorageLocation),
		filesync.WithStatusFunc(func(s filesync.Status) {
			if s.Err != nil {
				printWarning("%s %s: %v", s.Op, s.Path, s.Err)
			} else if s.Stats != nil {
				printStatus("Merge", "added=%d updated=%d kept=%d", s.Stats.Added, s.Stats.Updated, s.Stats.Kept)
			}
		}),
	)
	return channel, func() { store.Close() }, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change stylist configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("%-24s %-32s %s\n", k.Key, k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
