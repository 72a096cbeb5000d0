package render

import (
	"fmt"
	"sort"
	"strings"

	"unrat/internal/signal"
)

// Sample is one analyzed file as drawn in an indicator graph.
type Sample struct {
	Path    string
	Family  string
	Error   string
	Summary *signal.Summary
}

// IndicatorDOT renders samples, their indicator fields and the values
// those fields hold. Value nodes are keyed by their text, so two samples
// sharing a C2 host or mutex meet at the same node. Samples are clustered
// by family. Fields below minSeverity are left out; an empty minSeverity
// keeps every field.
func IndicatorDOT(samples []Sample, title, minSeverity string, t Theme) string {
	const maxValuesPerField = 6

	type valueNode struct {
		id, label, sev string
	}
	values := make(map[string]*valueNode)
	var valueOrder []string
	valueFor := func(v, sev string) string {
		n, ok := values[v]
		if !ok {
			n = &valueNode{id: fmt.Sprintf("v_%d", len(values)), label: truncLabel(v, 60), sev: sev}
			values[v] = n
			valueOrder = append(valueOrder, v)
		} else if rank(sev) > rank(n.sev) {
			n.sev = sev
		}
		return n.id
	}

	var b strings.Builder
	b.WriteString("digraph indicators {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.25;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.10,0.05\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.6, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeColor)
	if title != "" {
		b.WriteString("  labelloc=t; labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	byFamily := make(map[string][]int)
	for i, s := range samples {
		byFamily[s.Family] = append(byFamily[s.Family], i)
	}
	families := make([]string, 0, len(byFamily))
	for f := range byFamily {
		families = append(families, f)
	}
	sort.Strings(families)

	var edges []string
	for _, fam := range families {
		label := fam
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(fam))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n", t.ClusterLabel, dotEscape(label))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)

		for _, i := range byFamily[fam] {
			s := samples[i]
			sid := fmt.Sprintf("s_%d", i)
			if s.Summary == nil {
				fmt.Fprintf(&b, "    %s [label=%s, fillcolor=%q, color=%q, fontcolor=%q, style=\"filled,dashed\"];\n",
					sid, dotLabel(truncLabel(baseName(s.Path), 40), truncLabel(s.Error, 40)), t.NodeFill, t.ErrorText, t.ErrorText)
				continue
			}
			fmt.Fprintf(&b, "    %s [label=%s, fillcolor=%q, color=%q, penwidth=1.2];\n",
				sid, dotLabel(truncLabel(baseName(s.Path), 40), s.Summary.Severity), t.SampleFill, t.SampleBorder)

			for j, f := range s.Summary.Fields {
				if rank(f.Severity) < rank(minSeverity) {
					continue
				}
				fid := fmt.Sprintf("%s_f%d", sid, j)
				label := []string{f.Field}
				if len(f.Categories) > 0 {
					label = append(label, truncLabel(strings.Join(f.Categories, ","), 30))
				}
				color := t.severityColor(f.Severity)
				fill := t.NodeFill
				switch f.Severity {
				case signal.SeverityHigh:
					fill = t.HighFill
				case signal.SeverityMedium:
					fill = t.MediumFill
				}
				fmt.Fprintf(&b, "    %s [label=%s, fillcolor=%q, color=%q, fontcolor=%q];\n", fid, dotLabel(label...), fill, color, color)
				edges = append(edges, fmt.Sprintf("  %s -> %s [color=%q];", sid, fid, t.SampleBorder))

				vals := f.Values
				if len(vals) == 0 {
					vals = []string{f.Value}
				}
				for k, v := range vals {
					if k == maxValuesPerField {
						more := fmt.Sprintf("%s_more", fid)
						fmt.Fprintf(&b, "    %s [label=%q, shape=plaintext, style=\"\", fontsize=7, fontcolor=%q];\n",
							more, fmt.Sprintf("+%d more", len(vals)-maxValuesPerField), t.ClusterLabel)
						edges = append(edges, fmt.Sprintf("  %s -> %s [style=dotted, arrowsize=0.3, penwidth=0.4, color=%q];", fid, more, color))
						break
					}
					vid := valueFor(v, signal.MaxSeverity(signal.ClassifyString(v)))
					edges = append(edges, fmt.Sprintf("  %s -> %s [style=dotted, arrowsize=0.3, penwidth=0.4, color=%q];", fid, vid, color))
				}
			}
		}
		b.WriteString("  }\n")
	}
	b.WriteByte('\n')

	if len(valueOrder) > 0 {
		b.WriteString("  // Values\n")
		for _, v := range valueOrder {
			n := values[v]
			color := t.severityColor(n.sev)
			fmt.Fprintf(&b, "  %s [shape=rect, style=\"filled,rounded\", fillcolor=%q, color=%q, penwidth=0.3, fontsize=7, fontcolor=%q, fontname=\"Courier,monospace\", margin=\"0.06,0.03\", height=0.2, label=%s];\n",
				n.id, t.ValueFill, color, color, dotLabel(n.label))
		}
		b.WriteByte('\n')
	}

	for _, e := range edges {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}

// SharedValues counts values reached from more than one sample.
func SharedValues(samples []Sample) map[string]int {
	seen := make(map[string]map[int]bool)
	for i, s := range samples {
		if s.Summary == nil {
			continue
		}
		for _, f := range s.Summary.Fields {
			for _, v := range f.Values {
				if seen[v] == nil {
					seen[v] = make(map[int]bool)
				}
				seen[v][i] = true
			}
		}
	}
	out := make(map[string]int)
	for v, set := range seen {
		if len(set) > 1 {
			out[v] = len(set)
		}
	}
	return out
}

func rank(sev string) int {
	switch sev {
	case signal.SeverityHigh:
		return 3
	case signal.SeverityMedium:
		return 2
	case signal.SeverityLow:
		return 1
	}
	return 0
}
