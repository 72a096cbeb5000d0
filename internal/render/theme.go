package render

// Theme holds colors for indicator graphs.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string
	EdgeColor  string

	// Sample nodes.
	SampleFill   string
	SampleBorder string
	ErrorText    string // samples whose extraction failed

	// Field and value accents by severity.
	High   string
	Medium string
	Low    string

	HighFill   string
	MediumFill string
	ValueFill  string

	// Cluster styling.
	ClusterBorder string // family cluster border
	ClusterLabel  string // family cluster label text
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",
	EdgeColor:  "#424242", // dark gray

	SampleFill:   "#E8F5E9",
	SampleBorder: "#0B3D91", // NASA blue
	ErrorText:    "#9E9E9E",

	High:   "#C62828",
	Medium: "#E65100", // deep orange
	Low:    "#1565C0",

	HighFill:   "#FCE4EC",
	MediumFill: "#FFF3E0",
	ValueFill:  "#FFF8E1",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}

func (t Theme) severityColor(sev string) string {
	switch sev {
	case "high":
		return t.High
	case "medium":
		return t.Medium
	default:
		return t.Low
	}
}
