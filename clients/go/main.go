// Donut CLI - operator client for the donut service
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/eldtechnologies/donut/clients/go/donut"
)

func main() {
	timeout := pflag.Duration("timeout", 5*time.Minute, "Request timeout")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	client, err := donut.NewClientFromEnv()
	exitOnError(err)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd := args[0]; cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "start":
		resp, err := client.StartRound(ctx)
		exitOnError(err)
		printJSON(resp)

	case "remind":
		resp, err := client.SendReminders(ctx)
		exitOnError(err)
		printJSON(resp)

	case "summary":
		resp, err := client.PostSummary(ctx)
		exitOnError(err)
		printJSON(resp)

	case "status":
		resp, err := client.RoundSummary(ctx)
		exitOnError(err)
		printJSON(resp)

	case "config":
		resp, err := client.GetConfig(ctx)
		exitOnError(err)
		printJSON(resp)

	case "set-channel":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: donut set-channel <channel_id>")
			os.Exit(1)
		}
		exitOnError(client.SetChannel(ctx, args[1]))
		fmt.Printf("Round channel set to %s\n", args[1])

	case "set-interval":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: donut set-interval <days>")
			os.Exit(1)
		}
		days, err := strconv.Atoi(args[1])
		exitOnError(err)
		exitOnError(client.SetInterval(ctx, days))
		fmt.Printf("Pairing interval set to %d days\n", days)

	case "avoid":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: donut avoid <user_id> <avoid_user_id>")
			os.Exit(1)
		}
		exitOnError(client.Avoid(ctx, args[1], args[2]))
		fmt.Printf("%s will not be paired with %s\n", args[1], args[2])

	case "help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Donut CLI - coffee chat pairing operator client

Usage: donut [--timeout 5m] <command> [options]

Commands:
  start                          Create a round if one is due
  remind                         Send did-you-meet reminders
  summary                        Post the latest round summary
  status                         Show the latest round summary
  config                         Show round settings
  set-channel <channel_id>       Set the pairing channel
  set-interval <days>            Set the pairing interval
  avoid <user_id> <other_id>     Never pair two users
  health                         Check server health

Environment:
  DONUT_URL            Server URL (default: http://localhost:8080)
  DONUT_OPERATOR_KEY   Base64 Ed25519 private key or seed`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
