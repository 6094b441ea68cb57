package region

// Representation 生成路口在区域计算中的图表示
// 功能：对每个转向确定上游与下游受控路口（路网边界用路段代替），以评价区间内的转向流量为权重登记
func (n *Node) Representation() *NodeDataStructure {
	res := NewNodeDataStructure(n.ID())
	interval := n.ctx.RuntimeConfig().PSS.EvaluationInterval
	stats := n.ctx.Statistics()
	for _, t := range n.junction.Turnings() {
		pred, _ := n.junction.PreviousJunction(t.InSection)
		succ, _ := n.junction.NextJunction(t.OutSection)
		if _, ok := n.net.Node(pred); !ok {
			pred = 0
		}
		if _, ok := n.net.Node(succ); !ok {
			succ = 0
		}
		res.AddEntryUsingTurnings(pred, succ, stats.TurningFlow(t.ID, interval), t.InSection, t.OutSection)
	}
	return res
}
