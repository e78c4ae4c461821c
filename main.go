package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/panrelay/panrelay/api"
	"github.com/panrelay/panrelay/jobstore"
	"github.com/panrelay/panrelay/notifier"
	"github.com/panrelay/panrelay/processor"
)

var (
	sigCh = make(chan os.Signal, 1)
	cfg   Config
)

func main() {
	app := cli.NewApp()
	app.Name = "panrelay"
	app.Usage = "Cloud-drive link transfer service"
	app.HideVersion = true

	configFlag := cli.StringFlag{
		Name:  "config, c",
		Usage: "`FILE` to load config from",
		Value: "config.json",
	}

	app.Commands = cli.Commands{
		cli.Command{
			Name:  "serve",
			Usage: "Start the API web server and job workers",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "host",
					Usage: "`HOST` to listen on",
					Value: "0.0.0.0",
				},
				cli.IntFlag{
					Name:  "port, p",
					Usage: "`PORT` to listen on",
					Value: 8000,
				},
				configFlag,
			},
			Action: func(c *cli.Context) error {
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

				n, err := notifier.FromConfig(context.Background(), cfg.Notifier.Sinks)
				if err != nil {
					return err
				}

				store := jobstore.New()
				proc := newProcessor(store, n)

				srv := api.New(store, proc, c.String("host"), c.Int("port"))
				srv.QuarkCookie = cfg.Quark.Cookie
				srv.BaiduCookie = cfg.Baidu.Cookie

				logger := log.New(os.Stderr, "[api] ", log.Ldate|log.Ltime)
				go func() {
					logger.Println(fmt.Sprintf("Listening on %s...", srv.Server.Addr))
					err := srv.Server.ListenAndServe()
					if err != nil && err != http.ErrServerClosed {
						logger.Fatal(err)
					}
				}()

				<-sigCh
				logger.Println("Shutting down gracefully...")
				err = srv.Server.Shutdown(context.TODO())
				if err != nil {
					return err
				}
				n.Stop()
				logger.Println("Bye!")
				return nil
			},
			Before: parseCliConfig,
		},
		cli.Command{
			Name:      "run",
			Usage:     "Process one text file synchronously and print the result",
			ArgsUsage: "FILE",
			Flags:     []cli.Flag{configFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.NewExitError("usage: run FILE", 1)
				}
				text, err := ioutil.ReadFile(c.Args().First())
				if err != nil {
					return err
				}

				n, err := notifier.FromConfig(context.Background(), cfg.Notifier.Sinks)
				if err != nil {
					return err
				}
				defer n.Stop()

				store := jobstore.New()
				proc := newProcessor(store, n)

				id := store.Create()
				proc.Run(context.Background(), id, string(text), processor.Credentials{
					QuarkCookie: cfg.Quark.Cookie,
					BaiduCookie: cfg.Baidu.Cookie,
				})

				j, err := store.Get(id)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(j, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			},
			Before: parseCliConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newProcessor(store *jobstore.Store, n *notifier.Notifier) *processor.Processor {
	proc := processor.New(store, n)
	proc.QuarkSavePath = cfg.Quark.SavePath
	proc.BaiduSavePath = cfg.Baidu.SavePath
	proc.QuarkInjectURL = cfg.Quark.InjectURL
	proc.BaiduInjectURL = cfg.Baidu.InjectURL
	proc.BaiduInjectPassword = cfg.Baidu.InjectPassword
	return proc
}

func parseCliConfig(ctx *cli.Context) error {
	return parseConfig(ctx.String("config"))
}
