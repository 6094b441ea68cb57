package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/task"
	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
	"gopkg.in/yaml.v2"
)

var (
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 报告服务监听地址，覆盖配置文件中的server.listen
	listen = flag.String("listen", "", "HTTP listening address for reports and metrics (overrides server.listen)")
	// 监听配置文件变化，绿波协调参数热更新
	watch = flag.Bool("watch", false, "reload pss settings when the config file changes")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "greenwave")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var loader *config.Loader
	var err error
	if *configPath != "" {
		loader, err = config.NewLoader(*configPath)
	} else if *configData != "" {
		loader, err = config.NewLoaderFromData(*configData)
	} else {
		log.Panic("config file or config data must be specified")
	}
	if err != nil {
		log.Panicf("config load err: %v", err)
	}
	c := loader.Config()
	if *listen != "" {
		c.Server.Listen = *listen
	}
	if out, err := yaml.Marshal(c); err == nil {
		log.Debugf("config:\n%s", out)
	}

	ctx := task.NewContext(c)
	ctx.Init()

	if *watch {
		if *configPath == "" {
			log.Warn("-watch needs -config, ignored")
		} else {
			loader.OnChange(ctx.OnConfigChange)
			stop, err := loader.Watch()
			if err != nil {
				log.Panicf("watch config: %v", err)
			}
			defer stop()
		}
	}

	var srv *http.Server
	if c.Server.Listen != "" {
		mux := http.NewServeMux()
		ctx.Register(mux)
		srv = &http.Server{
			Addr:              c.Server.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("server listening at %v", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server: %v", err)
			}
		}()
	}

	// 收到信号后在当前时间步结束时停止
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, stopping", sig)
		ctx.Stop()
	}()

	ctx.Run()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("http server shutdown: %v", err)
		}
	}
}
