package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anatomap/server/internal/clusters"
	"github.com/anatomap/server/internal/features"
	"github.com/anatomap/server/internal/markers"
	"github.com/anatomap/server/internal/termgraph"
)

var (
	inspectHierarchy string
	inspectFeatures  string
	inspectRoot      string
	inspectTerms     []string
	inspectKind      string
	inspectMinZoom   int
	inspectMaxZoom   int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the zoom bands computed for a list of terms",
	Long: `Builds the clusters of a single dataset offline and prints the zoom
band of every term on its path to the root, followed by the marker shown
at each zoom level.

Example:
  anatomap inspect --hierarchy data/hierarchy.json --features data/features.json \
      --terms UBERON:0002082,CL:0000746`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectHierarchy, "hierarchy", "", "Hierarchy file (JSON or .json.zst)")
	inspectCmd.Flags().StringVar(&inspectFeatures, "features", "", "Features file (JSON or .json.zst)")
	inspectCmd.Flags().StringVar(&inspectRoot, "root", termgraph.DefaultRoot, "Root term")
	inspectCmd.Flags().StringSliceVar(&inspectTerms, "terms", nil, "Dataset terms")
	inspectCmd.Flags().StringVar(&inspectKind, "kind", string(clusters.KindDataset), "Dataset kind (dataset or multiscale)")
	inspectCmd.Flags().IntVar(&inspectMinZoom, "min-zoom", clusters.DefaultZoomRange.MinMarkerZoom, "Minimum marker zoom")
	inspectCmd.Flags().IntVar(&inspectMaxZoom, "max-zoom", clusters.DefaultZoomRange.MaxMarkerZoom, "Maximum marker zoom")
	_ = inspectCmd.MarkFlagRequired("hierarchy")
	_ = inspectCmd.MarkFlagRequired("features")
	_ = inspectCmd.MarkFlagRequired("terms")
}

func runInspect(cmd *cobra.Command, args []string) error {
	zoom := clusters.ZoomRange{MinMarkerZoom: inspectMinZoom, MaxMarkerZoom: inspectMaxZoom}
	if err := zoom.Validate(); err != nil {
		return err
	}

	graph, err := termgraph.LoadFile(inspectRoot, inspectHierarchy)
	if err != nil {
		return err
	}
	idx, err := features.LoadFile(inspectFeatures)
	if err != nil {
		return err
	}

	agg := markers.New(markers.Config{
		Graph:    graph,
		Features: idx,
		Zoom:     zoom,
		Logger:   logger,
	})
	ds := clusters.Dataset{ID: "inspect", Kind: clusters.Kind(inspectKind), Terms: inspectTerms}
	added := agg.AddDatasetMarkers([]clusters.Dataset{ds})
	if len(added) == 0 {
		return fmt.Errorf("no usable terms in %v", inspectTerms)
	}

	out := cmd.OutOrStdout()
	printClusterSet(out, added[0], graph)
	fmt.Fprintln(out)
	printZoomLevels(out, agg)
	return nil
}

func printClusterSet(out io.Writer, cs *clusters.ClusterSet, graph *termgraph.Graph) {
	for _, s := range cs.Substitutions() {
		fmt.Fprintf(out, "substituted %s -> %s\n", s.Term, s.MarkerTerm)
	}
	for _, t := range cs.Dropped() {
		fmt.Fprintf(out, "dropped %s\n", t)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TERM\tLABEL\tDEPTH\tZOOM\tTERMINAL\tREPRESENTS")
	for _, c := range cs.Clusters() {
		label, _ := graph.Label(c.Term)
		fmt.Fprintf(w, "%s\t%s\t%d\t[%d, %d)\t%v\t%s\n",
			c.Term, label, graph.Depth(c.Term), c.MinZoom, c.MaxZoom, c.Terminal,
			strings.Join(cs.Descendants(c.Term), ","))
	}
	w.Flush()
}

func printZoomLevels(out io.Writer, agg *markers.Aggregator) {
	points := agg.MarkerPoints()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ZOOM\tMARKERS")
	for z := 0; z <= agg.MaxZoom(); z++ {
		var shown []string
		for _, p := range points {
			if p.ZoomCounts[z] > 0 {
				shown = append(shown, p.Term)
			}
		}
		fmt.Fprintf(w, "%d\t%s\n", z, strings.Join(shown, " "))
	}
	w.Flush()
}
