// Command lendctl is a CLI client for the liblend server.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".liblend-token"
	}
	return filepath.Join(home, ".liblend", "token")
}

func main() {
	var (
		server    string
		tokenPath string
		c         *client
	)

	root := &cobra.Command{
		Use:           "lendctl",
		Short:         "Client for the liblend library lending tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			c = newClient(server, tokenPath)
		},
	}
	root.PersistentFlags().StringVar(&server, "server", envOr("LIBLEND_SERVER", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().StringVar(&tokenPath, "token-file", defaultTokenPath(), "where the session token is stored")

	register := &cobra.Command{
		Use:   "register <name> <email> <password>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			var u struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			in := map[string]string{"name": args[0], "email": args[1], "password": args[2]}
			if err := c.do("POST", "/api/register", in, &u); err != nil {
				return err
			}
			fmt.Printf("registered %s (%s)\n", u.Name, u.ID)
			return nil
		},
	}

	login := &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			var resp struct {
				Name        string `json:"name"`
				AccessToken string `json:"access_token"`
			}
			in := map[string]string{"email": args[0], "password": args[1]}
			if err := c.do("POST", "/api/login", in, &resp); err != nil {
				return err
			}
			if err := c.saveToken(resp.AccessToken); err != nil {
				return err
			}
			fmt.Printf("logged in as %s\n", resp.Name)
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_ = c.do("POST", "/api/logout", nil, nil)
			return c.dropToken()
		},
	}

	books := &cobra.Command{
		Use:   "books",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var out []struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				Author   string `json:"author"`
				IsLoaned bool   `json:"is_loaned"`
			}
			if err := c.do("GET", "/api/books", nil, &out); err != nil {
				return err
			}
			for _, b := range out {
				state := "available"
				if b.IsLoaned {
					state = "loaned"
				}
				fmt.Printf("%s  %-30s  %-20s  %s\n", b.ID, b.Title, b.Author, state)
			}
			return nil
		},
	}

	var isbn, description string
	addBook := &cobra.Command{
		Use:   "add-book <title> <author>",
		Short: "Register a book you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			var b struct {
				ID string `json:"id"`
			}
			in := map[string]string{
				"title": args[0], "author": args[1],
				"isbn": isbn, "description": description,
			}
			if err := c.do("POST", "/api/books", in, &b); err != nil {
				return err
			}
			fmt.Printf("added %s\n", b.ID)
			return nil
		},
	}
	addBook.Flags().StringVar(&isbn, "isbn", "", "ISBN")
	addBook.Flags().StringVar(&description, "description", "", "description")

	rmBook := &cobra.Command{
		Use:   "rm-book <book-id>",
		Short: "Delete a book you registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.do("DELETE", "/api/books/"+args[0], nil, nil)
		},
	}

	showBook := &cobra.Command{
		Use:   "book <book-id>",
		Short: "Show book details",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var b struct {
				Title    string     `json:"title"`
				Author   string     `json:"author"`
				ISBN     string     `json:"isbn"`
				IsLoaned bool       `json:"is_loaned"`
				DueDate  *time.Time `json:"due_date"`
			}
			if err := c.do("GET", "/api/books/"+args[0], nil, &b); err != nil {
				return err
			}
			fmt.Printf("%s — %s", b.Title, b.Author)
			if b.ISBN != "" {
				fmt.Printf(" (ISBN %s)", b.ISBN)
			}
			fmt.Println()
			if b.IsLoaned && b.DueDate != nil {
				fmt.Printf("on loan, due %s\n", b.DueDate.Format("2006-01-02"))
			} else {
				fmt.Println("available")
			}
			return nil
		},
	}

	loan := &cobra.Command{
		Use:   "loan <book-id>",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var l struct {
				DueDate time.Time `json:"due_date"`
			}
			if err := c.do("POST", "/api/loan", map[string]string{"book_id": args[0]}, &l); err != nil {
				return err
			}
			fmt.Printf("loaned, due %s\n", l.DueDate.Format("2006-01-02"))
			return nil
		},
	}

	ret := &cobra.Command{
		Use:   "return <book-id>",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.do("POST", "/api/return/"+args[0], nil, nil)
		},
	}

	loans := &cobra.Command{
		Use:   "loans",
		Short: "List your loans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var out []struct {
				BookTitle  string     `json:"book_title"`
				LoanDate   time.Time  `json:"loan_date"`
				DueDate    time.Time  `json:"due_date"`
				ReturnDate *time.Time `json:"return_date"`
			}
			if err := c.do("GET", "/api/loans", nil, &out); err != nil {
				return err
			}
			for _, l := range out {
				status := "due " + l.DueDate.Format("2006-01-02")
				if l.ReturnDate != nil {
					status = "returned " + l.ReturnDate.Format("2006-01-02")
				}
				fmt.Printf("%-30s  loaned %s  %s\n", l.BookTitle, l.LoanDate.Format("2006-01-02"), status)
			}
			return nil
		},
	}

	root.AddCommand(register, login, logout, books, addBook, rmBook, showBook, loan, ret, loans)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
