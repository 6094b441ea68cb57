package statistics

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "statistics")
