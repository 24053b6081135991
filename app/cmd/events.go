package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var EventsCmd = &cli.Command{
	Name:  "events",
	Usage: "Stream session lifecycle events until interrupted",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		ch, err := napi.SessionEvents(cctx.Context)
		if err != nil {
			return err
		}

		for ev := range ch {
			if len(ev.Payload) > 0 {
				fmt.Printf("%s %s\n", ev.Type, ev.Payload)
			} else {
				fmt.Println(ev.Type)
			}
		}
		return nil
	},
}
