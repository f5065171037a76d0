package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"photomap/internal/app"
	"photomap/internal/assign"
	"photomap/internal/export"
	"photomap/internal/grpcserver"
	"photomap/internal/listview"
	"photomap/internal/photo"
	"photomap/internal/storage"
)

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr     string
		grpcAddr string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve [folder]",
		Short: "Run the map page, the JSON API and the gRPC service",
		Long: `Serve the map page on the configured address. When a folder is given it is
imported as soon as the server is up. With --watch the folder is re-imported
whenever images below it change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if watchDir != "" {
				cfg.Watch.Dir = watchDir
			}

			ctx := cmd.Context()
			a, err := root.newApp(ctx, &cfg, root.log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Server.GRPCAddr != "" {
				go func() {
					if err := grpcserver.Serve(ctx, cfg.Server.GRPCAddr, a, root.log); err != nil {
						root.log.Warn("gRPC service disabled", "error", err)
					}
				}()
			}
			if len(args) == 1 {
				go func() {
					if _, err := a.ImportFolder(ctx, args[0]); err != nil {
						root.log.Error("initial import failed", "folder", args[0], "error", err)
					}
				}()
			}
			return root.serveFn(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address, empty disables")
	cmd.Flags().StringVar(&watchDir, "watch", "", "re-import this folder when it changes")
	return cmd
}

// importHeadless runs a one-off import of folder with no page attached.
func (r *Root) importHeadless(ctx context.Context, folder string) (*app.App, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", folder)
	}
	a, err := r.newApp(ctx, r.cfg, r.log, true)
	if err != nil {
		return nil, err
	}
	if _, err := a.ImportFolder(ctx, folder); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newImportCmd(root *Root) *cobra.Command {
	var (
		filter  string
		formats []string
		outDir  string
	)

	cmd := &cobra.Command{
		Use:   "import <folder>",
		Short: "Read time and location from a folder of photos and list them",
		Long: `Import every supported image below the folder, print one line per photo in
time order and a summary. Stored manual locations from earlier sessions are
applied to photos without GPS. Use --export to also write export files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := assign.ParseFilter(filter)
			if err != nil {
				return err
			}
			var fmts []export.Format
			for _, name := range formats {
				ef, err := export.ParseFormat(name)
				if err != nil {
					return err
				}
				fmts = append(fmts, ef)
			}

			ctx := cmd.Context()
			a, err := root.importHeadless(ctx, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Records(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printRecords(out, recs, f)
			st, err := a.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, assign.DescribeImport(st))

			if outDir == "" {
				outDir = root.cfg.Paths.ExportDir
			}
			for _, ef := range fmts {
				path := filepath.Join(outDir, ef.Filename())
				n, err := writeExport(path, ef, recs)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s (%d entries)\n", path, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "which photos to list (all|nogps|located|manual)")
	cmd.Flags().StringSliceVarP(&formats, "export", "e", nil, "also export (kml|manual|geojson|parquet), repeatable")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "export directory (default from config)")
	return cmd
}

func printRecords(w io.Writer, recs []photo.Record, f assign.Filter) {
	pred := f.Predicate()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, rec := range recs {
		if !pred(rec) {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", photo.FormatTime(rec.Timestamp), rec.ExportPath(), listview.LocationLabel(rec))
	}
	tw.Flush()
}

// fileURL points KML readers at the local thumbnail or original.
func fileURL(rec photo.Record) string {
	p := rec.Thumbnail
	if p == "" {
		p = rec.Source.Path
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// writeExport writes f to path, or to stdout when path is "-".
func writeExport(path string, f export.Format, recs []photo.Record) (int, error) {
	var buf bytes.Buffer
	n, err := export.Write(&buf, f, recs, export.KMLOptions{ImageURL: fileURL})
	if err != nil {
		return 0, err
	}
	if path == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return n, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

func newExportCmd(root *Root) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <kml|manual|geojson|parquet> <folder>",
		Short: "Import a folder and write one export file",
		Long: `Import the folder, apply stored manual locations and write the export.
kml contains every photo with a location, manual only the hand-placed ones
as {"path": {"lat": .., "lng": ..}}.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := root.importHeadless(ctx, args[1])
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Records(ctx)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(root.cfg.Paths.ExportDir, f.Filename())
			}
			n, err := writeExport(out, f, recs)
			if err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d entries)\n", out, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout")
	return cmd
}

func parseLatLng(s string) (photo.LatLng, error) {
	latS, lngS, ok := strings.Cut(s, ",")
	if !ok {
		return photo.LatLng{}, fmt.Errorf("location %q must be lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return photo.LatLng{}, fmt.Errorf("bad latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return photo.LatLng{}, fmt.Errorf("bad longitude: %w", err)
	}
	ll := photo.LatLng{Lat: lat, Lng: lng}
	if !ll.Valid() {
		return photo.LatLng{}, fmt.Errorf("location %s out of range", ll)
	}
	return ll, nil
}

func newAssignCmd(root *Root) *cobra.Command {
	var (
		at     string
		dir    string
		remote string
	)

	cmd := &cobra.Command{
		Use:   "assign --at lat,lng <photo-id>...",
		Short: "Place photos at a location",
		Long: `Assign a location to one or more photos by id (their path relative to the
imported folder, for example trip/IMG_0001.jpg).

With --dir the folder is imported locally and the assignment is stored so
later imports of the same folder keep it. Otherwise the running server at
--server (default: the configured gRPC address) is updated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if at == "" {
				return errors.New("--at is required")
			}
			ll, err := parseLatLng(at)
			if err != nil {
				return err
			}
			ids := make([]photo.ID, len(args))
			for i, a := range args {
				ids[i] = photo.ID(filepath.ToSlash(a))
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if dir != "" {
				a, err := root.importHeadless(ctx, dir)
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.Assign(ctx, ids, ll); err != nil {
					return err
				}
				fmt.Fprintf(out, "assigned %d photos to %s\n", len(ids), ll)
				return nil
			}

			if remote == "" {
				remote = root.cfg.Server.GRPCAddr
			}
			if remote == "" {
				return errors.New("no --dir given and no gRPC address configured")
			}
			client, closer, err := root.dial(remote)
			if err != nil {
				return err
			}
			defer closer.Close()
			n, err := client.AssignLocation(ctx, ids, ll)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "assigned %d photos to %s\n", n, ll)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "location as lat,lng (use --at=-33.8,151.2 for negatives)")
	cmd.Flags().StringVar(&dir, "dir", "", "import this folder locally instead of talking to a server")
	cmd.Flags().StringVar(&remote, "server", "", "gRPC address of a running photomap")
	return cmd
}

func newStatusCmd(root *Root) *cobra.Command {
	var (
		remote string
		list   bool
		filter string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the catalog of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote == "" {
				remote = root.cfg.Server.GRPCAddr
			}
			if remote == "" {
				return errors.New("no gRPC address configured")
			}
			client, closer, err := root.dial(remote)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			st, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d placed by hand.\n", assign.DescribeImport(st), st.Manual)
			if !list {
				return nil
			}
			photos, err := client.ListPhotos(ctx, filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range photos {
				loc := listview.NoLocationLabel
				if lat, ok := p["lat"].(float64); ok {
					loc = fmt.Sprintf("Location: %.5f, %.5f", lat, p["lng"])
				}
				fmt.Fprintf(tw, "%v\t%v\t%s\n", p["time"], p["path"], loc)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&remote, "server", "", "gRPC address of a running photomap")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list photos too")
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "which photos to list (all|nogps|located|manual)")
	return cmd
}

func (r *Root) openStore() (*storage.Store, error) {
	if _, err := os.Stat(r.cfg.Paths.DatabasePath); err != nil {
		return nil, fmt.Errorf("no database at %s: %w", r.cfg.Paths.DatabasePath, err)
	}
	return storage.New(r.cfg.Paths.DatabasePath)
}

func newBatchesCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent import batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			batches, err := store.RecentBatches(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILES\tIMPORTED\tLOCATED\tSOURCE")
			for _, b := range batches {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", b.ID, b.Status, b.FileCount, b.Imported, b.Located, b.Source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to show")
	return cmd
}

func newForgetCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete every stored manual location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.ForgetManualLocations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stored locations\n", n)
			return nil
		},
	}
}
