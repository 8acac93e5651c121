package cli

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/spf13/cobra"
)

var (
	listFavorite bool
	listCreated  bool
	listLimit    int
	listSkip     int
	favoriteOff  bool
)

var mangaCmd = &cobra.Command{
	Use:   "manga",
	Short: "Manga management commands",
	Long:  `List, create, edit and delete manga and their page images.`,
}

var mangaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List manga",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if listFavorite {
			q.Set("favorite", "true")
		}
		if listCreated {
			q.Set("created", "true")
		}
		if listLimit > 0 {
			q.Set("limit", strconv.Itoa(listLimit))
		}
		if listSkip > 0 {
			q.Set("skip", strconv.Itoa(listSkip))
		}
		path := "/manga"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list []models.MangaView
		if _, err := client.call(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No manga found")
			return nil
		}
		fmt.Fprintf(out, "Found %d manga(s):\n\n", len(list))
		for i, m := range list {
			fmt.Fprintf(out, "%d. %s\n", i+1+listSkip, m.Title)
			printInfo(out, "ID: "+m.ID)
			printInfo(out, fmt.Sprintf("Pages: %d", len(m.PageURLs)))
		}
		return nil
	},
}

var mangaGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one manga",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		var view models.MangaView
		if _, err := client.call(cmd.Context(), http.MethodGet, "/manga/"+url.PathEscape(args[0]), nil, &view); err != nil {
			return err
		}
		return printManga(cmd.OutOrStdout(), view)
	},
}

var mangaCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a manga",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		title := strings.Join(args, " ")
		var view models.MangaView
		if _, err := client.call(cmd.Context(), http.MethodPost, "/manga", map[string]string{"title": title}, &view); err != nil {
			return err
		}
		if !jsonOutput {
			printSuccess(cmd.OutOrStdout(), "Created "+view.Title)
		}
		return printManga(cmd.OutOrStdout(), view)
	},
}

var mangaRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a manga",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args[1:], " ")
		return updateManga(cmd, args[0], map[string]interface{}{"title": title})
	},
}

var mangaReorderCmd = &cobra.Command{
	Use:   "reorder <id> <page>...",
	Short: "Set the order of a manga's pages",
	Long:  `Reorder pages. Every current page must be listed exactly once.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateManga(cmd, args[0], map[string]interface{}{"pageURLs": args[1:]})
	},
}

var mangaUploadCmd = &cobra.Command{
	Use:   "upload <id> <file>...",
	Short: "Upload page images",
	Long:  `Upload png, jpg, jpeg or gif files. Pages are appended ordered by file name.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		files := args[1:]
		for _, f := range files {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("cannot read %s: %w", f, err)
			}
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeParts(mw, files))
		}()

		resp, err := client.do(cmd.Context(), http.MethodPost, "/manga/"+url.PathEscape(args[0])+"/upload", pr, mw.FormDataContentType())
		pr.Close()
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var view models.MangaView
		if err := decodeResponse(resp, &view); err != nil {
			return err
		}
		if !jsonOutput {
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Uploaded %d page(s)", len(files)))
		}
		return printManga(cmd.OutOrStdout(), view)
	},
}

var mangaDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a manga and all its pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		var view models.MangaView
		if _, err := client.call(cmd.Context(), http.MethodDelete, "/manga/"+url.PathEscape(args[0]), nil, &view); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), view)
		}
		printSuccess(cmd.OutOrStdout(), "Deleted "+view.Title)
		return nil
	},
}

var mangaRemovePageCmd = &cobra.Command{
	Use:   "rm-page <id> <file>",
	Short: "Delete one page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		path := "/manga/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
		var view models.MangaView
		if _, err := client.call(cmd.Context(), http.MethodDelete, path, nil, &view); err != nil {
			return err
		}
		if !jsonOutput {
			printSuccess(cmd.OutOrStdout(), "Removed "+args[1])
		}
		return printManga(cmd.OutOrStdout(), view)
	},
}

var mangaFavoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Mark or unmark a manga as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		var favorite bool
		body := map[string]bool{"favorite": !favoriteOff}
		if _, err := client.call(cmd.Context(), http.MethodPost, "/manga/"+url.PathEscape(args[0])+"/favorite", body, &favorite); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), favorite)
		}
		if favorite {
			printSuccess(cmd.OutOrStdout(), "Added to favorites")
		} else {
			printSuccess(cmd.OutOrStdout(), "Removed from favorites")
		}
		return nil
	},
}

func updateManga(cmd *cobra.Command, id string, body map[string]interface{}) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	var view models.MangaView
	if _, err := client.call(cmd.Context(), http.MethodPost, "/manga/"+url.PathEscape(id), body, &view); err != nil {
		return err
	}
	return printManga(cmd.OutOrStdout(), view)
}

func writeParts(mw *multipart.Writer, files []string) error {
	for _, path := range files {
		if err := writePart(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func printManga(w io.Writer, m models.MangaView) error {
	if jsonOutput {
		return printJSON(w, m)
	}
	fmt.Fprintln(w, m.Title)
	printInfo(w, "ID: "+m.ID)
	printInfo(w, "Owner: "+m.Owner)
	if m.Favorite != nil {
		printInfo(w, fmt.Sprintf("Favorite: %v", *m.Favorite))
	}
	printInfo(w, fmt.Sprintf("Pages (%d):", len(m.PageURLs)))
	for i, p := range m.PageURLs {
		printInfo(w, fmt.Sprintf("  %d. %s", i+1, p))
	}
	return nil
}

func init() {
	mangaListCmd.Flags().BoolVar(&listFavorite, "favorite", false, "only your favorites")
	mangaListCmd.Flags().BoolVar(&listCreated, "created", false, "only manga you created")
	mangaListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of results (0 = all)")
	mangaListCmd.Flags().IntVar(&listSkip, "skip", 0, "number of results to skip")
	mangaFavoriteCmd.Flags().BoolVar(&favoriteOff, "off", false, "remove from favorites")

	mangaCmd.AddCommand(mangaListCmd)
	mangaCmd.AddCommand(mangaGetCmd)
	mangaCmd.AddCommand(mangaCreateCmd)
	mangaCmd.AddCommand(mangaRenameCmd)
	mangaCmd.AddCommand(mangaReorderCmd)
	mangaCmd.AddCommand(mangaUploadCmd)
	mangaCmd.AddCommand(mangaDeleteCmd)
	mangaCmd.AddCommand(mangaRemovePageCmd)
	mangaCmd.AddCommand(mangaFavoriteCmd)
}
