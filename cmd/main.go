package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kass/go-georef/pkg/affine"
	"github.com/kass/go-georef/pkg/geojson"
	"github.com/kass/go-georef/pkg/loader"
	"github.com/kass/go-georef/pkg/match"
	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/postgis"
	"github.com/kass/go-georef/pkg/store"
	"github.com/kass/go-georef/pkg/syncpos"
)

var (
	gpsFile    string
	entityFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "georef",
	Short: "Fit an affine transform from control points and georeference image overlays",
	Long: `georef matches image-coordinate entities against GPS points by identifier,
fits a 6-parameter affine transform by least squares and repositions every
image-sourced marker accordingly.`,
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match image entities against GPS points",
	Long:  `Pair image-coordinate entities with GPS points by identifier and report match statistics.`,
	Run:   runMatch,
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Fit the affine transform and report accuracy",
	Long:  `Match control points, fit the affine transform by least squares and print residual and scale diagnostics.`,
	Run:   runEstimate,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Georeference all entities and write a GeoJSON FeatureCollection",
	Long: `Run the full pipeline: load, match, estimate, synchronize positions and
export one Point feature per resolved entity.`,
	Run: runExport,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Georeference all entities and publish them to PostGIS",
	Long:  `Run the full pipeline and bulk-insert the resolved features into a PostGIS table.`,
	Run:   runPublish,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query georeferenced features spatially",
	Long: `Query a saved session (or published PostGIS features with --from-db) by
radius, bounding box or nearest neighbors.`,
	Run: runQuery,
}

var (
	outFile     string
	sessionFile string
	configFile  string
	mapLat      float64
	mapZoom     float64
	swLat       float64
	swLng       float64
	neLat       float64
	neLng       float64
	imageWidth  float64
	imageHeight float64

	querySession string
	queryLat     float64
	queryLng     float64
	queryRadius  float64
	queryNearest int
	queryBox     []float64
	queryFromDB  bool
)

// Config mirrors the publish command's YAML configuration file.
type Config struct {
	PostGIS struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
	} `yaml:"postgis"`
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&gpsFile, "gps", "g", "", "GPS GeoJSON file")
	rootCmd.PersistentFlags().StringVarP(&entityFile, "entities", "e", "", "Image-coordinate entity JSON file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	estimateCmd.Flags().Float64Var(&mapLat, "center-lat", 0, "Map center latitude for scale normalization")
	estimateCmd.Flags().Float64Var(&mapZoom, "zoom", 15, "Map zoom level for scale normalization")

	for _, cmd := range []*cobra.Command{exportCmd, publishCmd} {
		cmd.Flags().Float64Var(&swLat, "sw-lat", 0, "Image bounds SW latitude (fallback before a fit)")
		cmd.Flags().Float64Var(&swLng, "sw-lng", 0, "Image bounds SW longitude")
		cmd.Flags().Float64Var(&neLat, "ne-lat", 0, "Image bounds NE latitude")
		cmd.Flags().Float64Var(&neLng, "ne-lng", 0, "Image bounds NE longitude")
		cmd.Flags().Float64Var(&imageWidth, "width", 0, "Image width in pixels")
		cmd.Flags().Float64Var(&imageHeight, "height", 0, "Image height in pixels")
	}

	exportCmd.Flags().StringVarP(&outFile, "out", "o", "out.geojson", "Output GeoJSON file")
	exportCmd.Flags().StringVar(&sessionFile, "session", "", "Save the session to this file after exporting")

	publishCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "PostGIS configuration file")

	queryCmd.Flags().StringVar(&querySession, "session", "session.gob", "Saved session file to query")
	queryCmd.Flags().Float64Var(&queryLat, "lat", 0, "Query center latitude")
	queryCmd.Flags().Float64Var(&queryLng, "lng", 0, "Query center longitude")
	queryCmd.Flags().Float64Var(&queryRadius, "radius", 1000, "Search radius in meters")
	queryCmd.Flags().IntVarP(&queryNearest, "nearest", "n", 0, "Return the n nearest features instead of a radius search")
	queryCmd.Flags().Float64SliceVar(&queryBox, "bbox", nil, "Bounding box minLat,minLng,maxLat,maxLng")
	queryCmd.Flags().BoolVar(&queryFromDB, "from-db", false, "Query published PostGIS features instead of a session file")
	queryCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "PostGIS configuration file (with --from-db)")

	rootCmd.AddCommand(matchCmd, estimateCmd, exportCmd, publishCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadInputs reads both input files into a fresh store.
func loadInputs() *store.Store {
	if gpsFile == "" || entityFile == "" {
		log.Fatal("both --gps and --entities are required")
	}

	s := store.New()

	gpsPoints, err := loader.LoadGpsPoints(gpsFile)
	if err != nil {
		log.Fatalf("Failed to load GPS points: %v", err)
	}
	s.LoadGps(gpsFile, gpsPoints)

	payload, err := loader.LoadImageEntities(entityFile)
	if err != nil {
		log.Fatalf("Failed to load image entities: %v", err)
	}
	for _, p := range payload.Points {
		s.AddEntity(p)
	}
	for _, r := range payload.Routes {
		if replaced := s.AddRoute(r); replaced && verbose {
			fmt.Printf("Route %s replaced an existing duplicate\n", r.ID)
		}
	}
	for _, sp := range payload.Spots {
		if merged := s.AddSpot(sp); merged && verbose {
			fmt.Printf("Spot %q merged into an existing duplicate\n", sp.Name)
		}
	}

	fmt.Printf("Loaded %d GPS points, %d entities (%d routes)\n",
		len(s.GpsPoints()), s.Count(), len(s.Routes()))
	return s
}

// controlCandidates returns the entities usable as control points: those that
// carry image pixel coordinates.
func controlCandidates(s *store.Store) []*models.ImageEntity {
	var out []*models.ImageEntity
	for _, e := range s.Entities() {
		if e.HasPixel {
			out = append(out, e)
		}
	}
	return out
}

func runMatch(cmd *cobra.Command, args []string) {
	s := loadInputs()

	result := match.Match(s.GpsPoints(), controlCandidates(s))

	fmt.Printf("\nMatch Results:\n")
	fmt.Printf("Candidates: %d\n", result.TotalCandidates)
	fmt.Printf("Matched:    %d\n", result.MatchedCount())
	fmt.Printf("Unmatched entities: %d\n", len(result.Unmatched))
	fmt.Printf("Unmatched GPS points: %d\n", len(result.UnmatchedGps))

	if verbose {
		for _, id := range result.Unmatched {
			fmt.Printf("  entity without GPS counterpart: %s\n", id)
		}
		for _, id := range result.UnmatchedGps {
			fmt.Printf("  GPS point never referenced: %s\n", id)
		}
	}
}

func runEstimate(cmd *cobra.Command, args []string) {
	s := loadInputs()

	result := match.Match(s.GpsPoints(), controlCandidates(s))
	fmt.Printf("Matched %d of %d candidates\n", result.MatchedCount(), result.TotalCandidates)

	transform, report, err := affine.Estimate(result.Pairs)
	if err != nil {
		if errors.Is(err, affine.ErrInsufficientControlPoints) {
			log.Fatalf("Need at least %d matched control points: %v", affine.MinControlPoints, err)
		}
		log.Fatalf("Estimation failed: %v", err)
	}

	fmt.Printf("\nAffine Transform:\n")
	fmt.Printf("  X: %.6f*x + %.6f*y + %.3f\n", transform.A, transform.B, transform.C)
	fmt.Printf("  Y: %.6f*x + %.6f*y + %.3f\n", transform.D, transform.E, transform.F)

	fmt.Printf("\nAccuracy (meters):\n")
	fmt.Printf("  mean %.3f, min %.3f, max %.3f over %d control points\n",
		report.Mean, report.Min, report.Max, len(report.Errors))

	centerLat := mapLat
	if centerLat == 0 && len(result.Pairs) > 0 {
		centerLat = result.Pairs[0].Gps.Lat
	}

	var p1, p2 *models.ControlPoint
	if len(result.Pairs) >= 2 {
		p1, p2 = &result.Pairs[0], &result.Pairs[1]
	}
	scale, err := affine.Scale(transform, p1, p2, centerLat, mapZoom)
	if err != nil {
		log.Printf("Scale computation failed: %v", err)
		return
	}

	fmt.Printf("\nScale:\n")
	fmt.Printf("  %.4f meters/pixel, display factor %.4f (method: %s)\n",
		scale.MetersPerPixel, scale.Factor, scale.Method)
	if scale.Anisotropy > 1.05 {
		fmt.Printf("  warning: anisotropic fit (ratio %.3f), scale is approximate\n", scale.Anisotropy)
	}
}

// resolvePositions runs the synchronization pass, preferring a fitted
// transform and falling back to image bounds when the fit is impossible.
func resolvePositions(s *store.Store) {
	result := match.Match(s.GpsPoints(), controlCandidates(s))

	sync := syncpos.New(s)
	notifier := &syncpos.Notifier{}
	sync.Subscribe(notifier)

	if bounds := boundsFromFlags(); bounds != nil {
		sync.SetPlacement(*bounds)
	}

	transform, report, err := affine.Estimate(result.Pairs)
	if err != nil {
		log.Printf("No transform fitted (%v); using image bounds fallback", err)
	} else {
		sync.SetTransform(transform)
		fmt.Printf("Fitted transform, mean error %.3f m over %d control points\n",
			report.Mean, len(report.Errors))
	}

	notifier.Notify()

	passResult := sync.LastResult()
	fmt.Printf("Synchronized positions: %d updated, %d skipped, %d gps-pinned\n",
		passResult.Updated, passResult.Skipped, passResult.Untouched)
}

func boundsFromFlags() *models.ImageBounds {
	if imageWidth <= 0 || imageHeight <= 0 {
		return nil
	}
	return &models.ImageBounds{
		SW:     models.Location{Lat: swLat, Lng: swLng},
		NE:     models.Location{Lat: neLat, Lng: neLng},
		Width:  imageWidth,
		Height: imageHeight,
	}
}

func runExport(cmd *cobra.Command, args []string) {
	s := loadInputs()
	resolvePositions(s)

	fc := geojson.Export(s.Entities())
	data, err := fc.Marshal()
	if err != nil {
		log.Fatalf("Failed to marshal GeoJSON: %v", err)
	}
	if err := os.WriteFile(outFile, data, 0o644); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Wrote %d features to %s\n", len(fc.Features), outFile)

	if sessionFile != "" {
		if err := s.SaveToFile(sessionFile); err != nil {
			log.Fatalf("Failed to save session: %v", err)
		}
		fmt.Printf("Session saved to %s\n", sessionFile)
	}
}

// openPublisher connects to PostGIS using the YAML config file.
func openPublisher() *postgis.Publisher {
	cfgData, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	publisher, err := postgis.NewPublisher(
		cfg.PostGIS.Host, cfg.PostGIS.User, cfg.PostGIS.Password,
		cfg.PostGIS.Database, cfg.PostGIS.Port)
	if err != nil {
		log.Fatalf("Failed to connect to PostGIS: %v", err)
	}
	return publisher
}

func runPublish(cmd *cobra.Command, args []string) {
	publisher := openPublisher()
	defer publisher.Close()

	s := loadInputs()
	resolvePositions(s)

	if err := publisher.InitSchema(); err != nil {
		log.Fatalf("Failed to init schema: %v", err)
	}

	inserted, err := publisher.PublishEntities(s.Entities())
	if err != nil {
		log.Fatalf("Failed to publish features: %v", err)
	}
	total, err := publisher.Count()
	if err != nil {
		log.Fatalf("Failed to count published features: %v", err)
	}
	fmt.Printf("Published %d features, table holds %d\n", inserted, total)
}

func runQuery(cmd *cobra.Command, args []string) {
	center := models.Location{Lat: queryLat, Lng: queryLng}

	if queryFromDB {
		publisher := openPublisher()
		defer publisher.Close()

		results, err := publisher.QueryRadius(center, queryRadius)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		total, err := publisher.Count()
		if err != nil {
			log.Fatalf("Failed to count features: %v", err)
		}
		fmt.Printf("%d of %d features within %.0f m of (%.5f, %.5f):\n",
			len(results), total, queryRadius, queryLat, queryLng)
		printEntities(results)
		return
	}

	s := store.New()
	if err := s.LoadFromFile(querySession); err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	var (
		results []*models.ImageEntity
		err     error
	)
	switch {
	case queryNearest > 0:
		results = s.NearestNeighbors(center, queryNearest)
		fmt.Printf("%d nearest features to (%.5f, %.5f):\n", len(results), queryLat, queryLng)
	case len(queryBox) == 4:
		results, err = s.SearchBounds(models.BoundingBox{
			BottomLeft: models.Location{Lat: queryBox[0], Lng: queryBox[1]},
			TopRight:   models.Location{Lat: queryBox[2], Lng: queryBox[3]},
		})
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		fmt.Printf("%d features in bounding box:\n", len(results))
	case len(queryBox) != 0:
		log.Fatalf("--bbox needs exactly 4 values, got %d", len(queryBox))
	default:
		results, err = s.SearchRadius(center, queryRadius)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		fmt.Printf("%d features within %.0f m of (%.5f, %.5f):\n",
			len(results), queryRadius, queryLat, queryLng)
	}
	printEntities(results)
}

func printEntities(entities []*models.ImageEntity) {
	for _, e := range entities {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		fmt.Printf("  %-10s %-24s (%.5f, %.5f)\n", e.Kind, name, e.Lat, e.Lng)
	}
}
