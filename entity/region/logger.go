package region

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "region")
