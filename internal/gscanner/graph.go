package gscanner

import (
	"context"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/module"
	"github.com/Notation/gscanner/internal/solidity"
)

const graphTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Call Graph</title>
<link href="https://cdnjs.cloudflare.com/ajax/libs/vis/4.21.0/vis.min.css" rel="stylesheet" type="text/css" />
<script src="https://cdnjs.cloudflare.com/ajax/libs/vis/4.21.0/vis.min.js"></script>
<style type="text/css">
body { background-color: {{.Background}}; margin: 0; }
#mynetwork { height: 100vh; width: 100%; }
</style>
</head>
<body>
<div id="mynetwork"></div>
<script type="text/javascript">
var options = {{.Options}};
var nodes = new vis.DataSet({{.Nodes}});
var edges = new vis.DataSet({{.Edges}});
var container = document.getElementById("mynetwork");
var network = new vis.Network(container, {nodes: nodes, edges: edges}, options);
</script>
</body>
</html>
`

var graphHTML = template.Must(template.New("graph").Parse(graphTemplate))

// 按函数区分的节点颜色
var nodeColors = []string{
	"#2f7e5b", "#5b2f7e", "#7e5b2f", "#2f5b7e", "#7e2f5b", "#5b7e2f", "#436ea0", "#a06e43",
}

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

type visEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label,omitempty"`
	Arrows string `json:"arrows"`
}

type graphData struct {
	Background template.CSS
	Options    map[string]interface{}
	Nodes      []visNode
	Edges      []visEdge
}

func graphOptions(physics, phrack bool) map[string]interface{} {
	font := map[string]interface{}{"face": "arial", "color": "#ffffff", "align": "left"}
	nodes := map[string]interface{}{"shape": "box", "font": font, "borderWidth": 1}
	edges := map[string]interface{}{
		"font":   map[string]interface{}{"color": "#bbbbbb", "strokeWidth": 0},
		"smooth": map[string]interface{}{"type": "cubicBezier"},
	}
	if phrack {
		font["face"] = "courier new"
		font["color"] = "#000000"
		nodes["color"] = map[string]interface{}{"background": "#ffffff", "border": "#000000"}
		edges["color"] = "#000000"
		edges["font"] = map[string]interface{}{"color": "#000000", "face": "courier new"}
	}
	return map[string]interface{}{
		"autoResize": true,
		"layout": map[string]interface{}{
			"improvedLayout": true,
			"hierarchical": map[string]interface{}{
				"enabled":         true,
				"levelSeparation": 450,
				"nodeSpacing":     200,
				"direction":       "LR",
				"sortMethod":      "directed",
			},
		},
		"nodes":   nodes,
		"edges":   edges,
		"physics": map[string]interface{}{"enabled": physics},
	}
}

func renderGraph(space *statespace, physics, phrack bool) (string, error) {
	data := graphData{
		Background: "#232625",
		Options:    graphOptions(physics, phrack),
		Nodes:      make([]visNode, 0, len(space.nodes)),
		Edges:      make([]visEdge, 0, len(space.edges)),
	}
	if phrack {
		data.Background = "#ffffff"
	}
	colors := make(map[string]string)
	for _, node := range space.nodes {
		vn := visNode{
			ID:    node.ID,
			Label: node.Function + "\n" + node.Code,
			Title: strings.ReplaceAll(node.Code, "\n", "<br>"),
		}
		if !phrack {
			if _, ok := colors[node.Function]; !ok {
				colors[node.Function] = nodeColors[len(colors)%len(nodeColors)]
			}
			vn.Color = colors[node.Function]
		}
		data.Nodes = append(data.Nodes, vn)
	}
	for _, edge := range space.edges {
		data.Edges = append(data.Edges, visEdge{From: edge.From, To: edge.To, Label: edge.Condition, Arrows: "to"})
	}
	var b strings.Builder
	if err := graphHTML.Execute(&b, data); err != nil {
		return "", errors.Wrap(err, "render graph")
	}
	return b.String(), nil
}

// GraphHTML 执行合约并将探索过的基本块渲染为vis.js页面
func (ma *Analyzer) GraphHTML(ctx context.Context, contract *solidity.EVMContract, txCount int, physics, phrack bool) (string, error) {
	sym, err := ma.explore(ctx, contract, module.NewModuleManager(), txCount)
	if err != nil {
		return "", err
	}
	return renderGraph(sym.space, physics, phrack)
}

// DumpStatespace 执行合约并以json输出状态空间
func (ma *Analyzer) DumpStatespace(ctx context.Context, contract *solidity.EVMContract, txCount int) (string, error) {
	sym, err := ma.explore(ctx, contract, module.NewModuleManager(), txCount)
	if err != nil {
		return "", err
	}
	out := struct {
		Nodes []*Node `json:"nodes"`
		Edges []Edge  `json:"edges"`
	}{
		Nodes: sym.space.nodes,
		Edges: sym.space.edges,
	}
	if out.Nodes == nil {
		out.Nodes = []*Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "json.Marshal")
	}
	return string(data), nil
}
