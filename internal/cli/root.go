package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"photomap/internal/app"
	"photomap/internal/catalog"
	"photomap/internal/config"
	"photomap/internal/grpcserver"
	"photomap/internal/logging"
	"photomap/internal/photo"
	"photomap/internal/server"
)

type appFactory func(ctx context.Context, cfg *config.Config, log *slog.Logger, headless bool) (*app.App, error)

type serverFunc func(ctx context.Context, a *app.App) error

type catalogClient interface {
	Stats(ctx context.Context) (catalog.Stats, error)
	ListPhotos(ctx context.Context, filter string) ([]map[string]any, error)
	AssignLocation(ctx context.Context, ids []photo.ID, ll photo.LatLng) (int, error)
}

type dialFunc func(addr string) (catalogClient, io.Closer, error)

func defaultServe(ctx context.Context, a *app.App) error {
	return server.New(a).Start(ctx)
}

func defaultDial(addr string) (catalogClient, io.Closer, error) {
	client, conn, err := grpcserver.Dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return client, conn, nil
}

// Root carries what every command needs. cfg and log are filled in by the
// root command's pre-run unless already set.
type Root struct {
	cfg     *config.Config
	log     *slog.Logger
	newApp  appFactory
	serveFn serverFunc
	dial    dialFunc
}

// NewRoot returns a Root wired to the real components.
func NewRoot() *Root {
	return &Root{
		newApp:  app.New,
		serveFn: defaultServe,
		dial:    defaultDial,
	}
}

func (r *Root) init() error {
	if r.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
	}
	if r.log == nil {
		log, err := logging.Setup(r.cfg)
		if err != nil {
			return err
		}
		r.log = log
	}
	return nil
}

// NewRootCmd creates the root Cobra command
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photomap",
		Short: "Put travel photos on a map",
		Long: `photomap reads capture time and GPS position from a folder of photos,
shows them on a map next to a time-ordered list, and lets you place the
photos without GPS by selecting them and clicking the map.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return root.init()
		},
	}

	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newImportCmd(root))
	rootCmd.AddCommand(newExportCmd(root))
	rootCmd.AddCommand(newAssignCmd(root))
	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newBatchesCmd(root))
	rootCmd.AddCommand(newForgetCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newToolsCmd(root))

	return rootCmd
}
