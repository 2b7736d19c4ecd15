package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/minio/selfupdate"
	"github.com/spf13/cobra"

	"github.com/skilletai/skillet/internal/style"
)

const (
	updateCacheFile = ".skillet/update_cache.json"
	cacheExpiry     = 2 * time.Hour
	githubAPIURL    = "https://api.github.com/repos/skilletai/skillet/releases/latest"
)

type UpdateInfo struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
	CurrentIsOld  bool      `json:"current_is_old"`
	DownloadURL   string    `json:"download_url"`
}

type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update skillet to the latest version",
	Long: `Update skillet to the latest release.

This command:
- Checks for the latest release on GitHub
- Downloads the binary for your platform
- Replaces the current binary in place, rolling back on failure`,
	Example: `
  skillet update              # Update to latest version
  skillet update --check      # Only check for updates without updating
  skillet update --force      # Force update even if already on latest version`,
	Run: func(cmd *cobra.Command, args []string) {
		checkOnly, _ := cmd.Flags().GetBool("check")
		force, _ := cmd.Flags().GetBool("force")

		if checkOnly {
			checkForUpdate(cmd, true)
			return
		}

		performUpdate(cmd, force)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().Bool("check", false, "only check for updates without updating")
	updateCmd.Flags().Bool("force", false, "force update even if already on latest version")
}

// checkForUpdate checks if a newer version is available
func checkForUpdate(cmd *cobra.Command, verbose bool) *UpdateInfo {
	updateInfo := loadUpdateCache()

	if updateInfo != nil && time.Since(updateInfo.LastChecked) < cacheExpiry {
		if verbose {
			reportUpdateStatus(cmd, updateInfo)
		}
		return updateInfo
	}

	latest, downloadURL, err := fetchLatestVersion()
	if err != nil {
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to check for updates: %s\n", style.ErrorIcon(), err)
		}
		return nil
	}

	updateInfo = &UpdateInfo{
		LastChecked:   time.Now(),
		LatestVersion: latest,
		CurrentIsOld:  isOutdated(Version, latest),
		DownloadURL:   downloadURL,
	}

	saveUpdateCache(updateInfo)

	if verbose {
		reportUpdateStatus(cmd, updateInfo)
	}

	return updateInfo
}

func reportUpdateStatus(cmd *cobra.Command, updateInfo *UpdateInfo) {
	if updateInfo.CurrentIsOld {
		fmt.Fprintf(cmd.OutOrStdout(), "%s A newer version (%s) is available!\n", style.InfoIcon(), updateInfo.LatestVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "Run 'skillet update' to upgrade.\n")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s You are running the latest version (%s)\n", style.SuccessIcon(), Version)
	}
}

// isOutdated compares the running version against a release tag.
// Both sides must parse as semantic versions; a dev build never counts
// as outdated unless the strings plainly differ.
func isOutdated(current, latest string) bool {
	currentSemver, err1 := semver.NewVersion(normalizeVersion(current))
	latestSemver, err2 := semver.NewVersion(normalizeVersion(latest))

	if err1 == nil && err2 == nil {
		return currentSemver.LessThan(latestSemver)
	}
	return normalizeVersion(current) != normalizeVersion(latest) && current != "dev"
}

// performUpdate downloads and installs the latest version
func performUpdate(cmd *cobra.Command, force bool) {
	updateInfo := checkForUpdate(cmd, false)
	if updateInfo == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to check for updates\n", style.ErrorIcon())
		return
	}

	if !updateInfo.CurrentIsOld && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s You are already running the latest version (%s)\n", style.SuccessIcon(), Version)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Downloading skillet %s...\n", style.InfoIcon(), updateInfo.LatestVersion)

	if err := applyUpdate(updateInfo.DownloadURL); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to apply update: %s\n", style.ErrorIcon(), err)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Successfully updated to skillet %s!\n", style.SuccessIcon(), updateInfo.LatestVersion)
}

// applyUpdate streams the release binary into the running executable.
// selfupdate writes to a temporary file first and restores the original
// binary when the swap fails halfway.
func applyUpdate(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("downloading binary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := selfupdate.Apply(resp.Body, selfupdate.Options{}); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("update failed and rollback failed, binary may be broken: %w", rerr)
		}
		return fmt.Errorf("applying update: %w", err)
	}

	return nil
}

// fetchLatestVersion gets the latest version from the GitHub API
func fetchLatestVersion() (version, downloadURL string, err error) {
	resp, err := http.Get(githubAPIURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch release info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", fmt.Errorf("failed to decode release info: %w", err)
	}

	assetName := fmt.Sprintf("skillet_%s_%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		assetName += ".exe"
	}

	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, assetName) {
			return release.TagName, asset.BrowserDownloadURL, nil
		}
	}

	return "", "", fmt.Errorf("no binary found for platform %s/%s", runtime.GOOS, runtime.GOARCH)
}

// normalizeVersion removes the 'v' prefix from version strings
func normalizeVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

// loadUpdateCache loads cached update information
func loadUpdateCache() *UpdateInfo {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(homeDir, updateCacheFile))
	if err != nil {
		return nil
	}

	var updateInfo UpdateInfo
	if err := json.Unmarshal(data, &updateInfo); err != nil {
		return nil
	}

	return &updateInfo
}

// saveUpdateCache saves update information to cache
func saveUpdateCache(updateInfo *UpdateInfo) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}

	cacheFile := filepath.Join(homeDir, updateCacheFile)
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0o755); err != nil {
		return
	}

	data, err := json.MarshalIndent(updateInfo, "", "  ")
	if err != nil {
		return
	}

	_ = os.WriteFile(cacheFile, data, 0o644)
}

// ShouldShowUpdateNotification reports from cache only, so command exit
// never blocks on the network.
func ShouldShowUpdateNotification() *UpdateInfo {
	updateInfo := loadUpdateCache()

	if updateInfo == nil || time.Since(updateInfo.LastChecked) > cacheExpiry {
		return nil
	}

	if updateInfo.CurrentIsOld {
		return updateInfo
	}

	return nil
}
