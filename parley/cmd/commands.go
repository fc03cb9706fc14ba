package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"parley/parley/realtime"
	"parley/parley/types"
	"parley/parley/utils/color"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

func newChatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List your chats, newest first",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			cobra.CheckErr(err)
			defer s.Close()

			cobra.CheckErr(s.ListChats(ctx))
			u, err := s.await([]string{realtime.EventChatsList}, nil)
			cobra.CheckErr(err)
			if len(u.state.Chats) == 0 {
				fmt.Println(color.ColorInfo("No chats yet. Start one with `parley new`."))
				return
			}
			for _, chat := range u.state.Chats {
				printChat(chat)
			}
		},
	}
}

func newNewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and talk in it",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			cobra.CheckErr(err)
			defer s.Close()

			cobra.CheckErr(s.CreateChat(ctx))
			u, err := s.await([]string{realtime.EventChatCreated}, nil)
			cobra.CheckErr(err)
			fmt.Println(color.ColorInfo("Created chat " + u.state.ActiveChatID))
			cobra.CheckErr(repl(ctx, s))
		},
	}
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [chatId]",
		Short: "Open a chat and talk in it; picks one interactively without an id",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			cobra.CheckErr(err)
			defer s.Close()

			var chatID string
			if len(args) == 1 {
				chatID = args[0]
			} else {
				chatID, err = pickChat(ctx, s)
				cobra.CheckErr(err)
			}

			if chatID == "" {
				cobra.CheckErr(s.CreateChat(ctx))
				_, err = s.await([]string{realtime.EventChatCreated}, nil)
				cobra.CheckErr(err)
			} else {
				cobra.CheckErr(s.SelectChat(ctx, chatID))
				u, err := s.await([]string{realtime.EventChatHistory}, nil)
				cobra.CheckErr(err)
				printHistory(u.state.Messages)
			}
			cobra.CheckErr(repl(ctx, s))
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <chatId>",
		Short: "Delete a chat and all of its messages",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			cobra.CheckErr(err)
			defer s.Close()

			confirm := func(chatID string) bool {
				return yes || queryUser(fmt.Sprintf("Delete chat %s and all of its messages?", chatID))
			}
			deleted, err := s.DeleteChat(ctx, args[0], confirm)
			cobra.CheckErr(err)
			if !deleted {
				fmt.Println(color.ColorWarning("Aborted."))
				return
			}
			_, err = s.await([]string{realtime.EventChatDeleted}, nil)
			cobra.CheckErr(err)
			fmt.Println(color.ColorInfo("Deleted chat " + args[0]))
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation")
	return cmd
}

func queryUser(question string) bool {
	surveyQuestion := &survey.Confirm{
		Message: question,
	}
	confirm := false
	survey.AskOne(surveyQuestion, &confirm)
	return confirm
}

// pickChat lets the user choose among their chats. An empty id means a new chat.
func pickChat(ctx context.Context, s *session) (string, error) {
	if err := s.ListChats(ctx); err != nil {
		return "", err
	}
	u, err := s.await([]string{realtime.EventChatsList}, nil)
	if err != nil {
		return "", err
	}
	options := []string{"+ New chat"}
	for _, chat := range u.state.Chats {
		options = append(options, fmt.Sprintf("%s  (%s)", chat.Title, chat.CreatedAt.Local().Format("Jan 2 15:04")))
	}
	var idx int
	if err := survey.AskOne(&survey.Select{Message: "Pick a chat:", Options: options}, &idx); err != nil {
		return "", err
	}
	if idx == 0 {
		return "", nil
	}
	return u.state.Chats[idx-1].ID, nil
}

const replHelp = `Commands:
  /history        show this chat's messages with their ids
  /delete <id>    delete one message
  /exit           leave`

// repl reads lines from stdin and streams each reply as it arrives.
func repl(ctx context.Context, s *session) error {
	fmt.Println(color.ColorMuted("Type a message, /help for commands, /exit to quit."))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.ColorPrompt("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/help":
			fmt.Println(replHelp)
		case line == "/history":
			printHistory(s.State().Messages)
		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			if err := s.DeleteMessage(ctx, id); err != nil {
				fmt.Println(color.ColorError(err.Error()))
				continue
			}
			if _, err := s.await([]string{realtime.EventMessageDeleted}, nil); err != nil {
				fmt.Println(color.ColorError(err.Error()))
			}
		default:
			if err := s.SendMessage(ctx, line); err != nil {
				fmt.Println(color.ColorError(err.Error()))
				continue
			}
			if err := streamReply(s); err != nil {
				return err
			}
		}
	}
}

// streamReply prints chunks until the stream ends. Errors raised after the
// stream started are printed and the wait continues, since the end event
// still follows.
func streamReply(s *session) error {
	started := false
	fmt.Print(color.ColorAssistant("ai> "))
	for {
		u, err := s.await([]string{realtime.EventStreamStart, realtime.EventStreamChunk, realtime.EventStreamEnd}, nil)
		if err != nil {
			if u.env.Event != realtime.EventError {
				return err
			}
			fmt.Println(color.ColorError(err.Error()))
			if !started {
				return nil
			}
			continue
		}
		switch u.env.Event {
		case realtime.EventStreamStart:
			started = true
		case realtime.EventStreamChunk:
			var f realtime.StreamFrame
			if err := u.env.Decode(&f); err == nil {
				fmt.Print(color.ColorAssistant(f.Chunk))
			}
		case realtime.EventStreamEnd:
			fmt.Println()
			return nil
		}
	}
}

func printChat(chat types.Chat) {
	fmt.Printf("%s  %s  %s\n",
		color.ColorTitle(chat.Title),
		color.ColorMuted(chat.CreatedAt.Local().Format("2006-01-02 15:04")),
		color.ColorMuted(chat.ID))
}

func printHistory(msgs []types.Message) {
	for _, m := range msgs {
		id := color.ColorMuted("[" + m.ID + "]")
		if m.Role == types.RoleUser {
			fmt.Println(id, color.ColorPrompt("you>"), m.Content)
		} else {
			fmt.Println(id, color.ColorAssistant("ai> "+m.Content))
		}
	}
}
