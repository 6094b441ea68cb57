package graph

import "github.com/sirupsen/logrus"

// log 走廊图模块的日志记录器
var log = logrus.WithField("module", "graph")
