package main

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"frontdesk/internal/config"
	"frontdesk/internal/store"
)

// Archive entry names. The database keeps its suffixes so WAL files restore next to it.
const (
	archiveDB     = "frontdesk.db"
	archiveConfig = "config"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the message database and config",
		Long: `Creates a compressed .tar.gz archive containing the SQLite database
(with its WAL files) and the configuration file. MySQL deployments should use
their own dump tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := backupTargets(cfgPath)
			if err != nil {
				return err
			}

			if outputPath == "" {
				backupDir := filepath.Join(cfg.General.DataDir, "backups")
				if err := os.MkdirAll(backupDir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("frontdesk-backup-%s.tar.gz", ts))
			}

			entries := collectBackup(cfg.Storage.Path, cfgPath)
			if len(entries) == 0 {
				return fmt.Errorf("no files to backup (db: %s, config: %s)", cfg.Storage.Path, cfgPath)
			}
			if err := createTarGz(outputPath, entries); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Printf("Backup created: %s\n", outputPath)
			fmt.Printf("Files included: %d\n", len(entries))
			for _, e := range entries {
				var size int64
				if info, err := os.Stat(e.path); err == nil {
					size = info.Size()
				}
				fmt.Printf("  - %s (%s)\n", e.name, humanSize(size))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: <dataDir>/backups/frontdesk-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "restore [file.tar.gz]",
		Short: "Restore the message database and config from a backup archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" && len(args) > 0 {
				inputPath = args[0]
			}
			if inputPath == "" {
				return fmt.Errorf("specify a backup file: frontdesk restore <file.tar.gz>")
			}

			cfgPath := resolveConfigPath()
			cfg, err := backupTargets(cfgPath)
			if err != nil {
				return err
			}
			dbPath := cfg.Storage.Path

			if !force && (exists(dbPath) || exists(cfgPath)) {
				fmt.Printf("WARNING: This will overwrite existing data.\n")
				fmt.Printf("  Database: %s\n", dbPath)
				fmt.Printf("  Config:   %s\n", cfgPath)
				fmt.Printf("Stop 'frontdesk serve' first. Use --force to skip this warning.\n")
				return fmt.Errorf("restore aborted (use --force to proceed)")
			}

			restored, err := extractTarGz(inputPath, dbPath, cfgPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restore completed from: %s\n", inputPath)
			fmt.Printf("Files restored: %d\n", len(restored))
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "backup file to restore from")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// backupTargets loads the config (or defaults) and refuses non-sqlite storage.
func backupTargets(cfgPath string) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
		cfg.Storage.Path = config.ExpandPath(cfg.Storage.Path)
	}
	if cfg.Storage.Driver == store.DriverMySQL {
		return nil, errors.New("backup only covers sqlite storage; use mysqldump for mysql")
	}
	return cfg, nil
}

type archiveEntry struct {
	path string // file on disk
	name string // name inside the archive
}

func collectBackup(dbPath, cfgPath string) []archiveEntry {
	var entries []archiveEntry
	if exists(dbPath) {
		entries = append(entries, archiveEntry{dbPath, archiveDB})
		for _, suffix := range []string{"-wal", "-shm"} {
			if exists(dbPath + suffix) {
				entries = append(entries, archiveEntry{dbPath + suffix, archiveDB + suffix})
			}
		}
	}
	if exists(cfgPath) {
		entries = append(entries, archiveEntry{cfgPath, archiveConfig + filepath.Ext(cfgPath)})
	}
	return entries
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// createTarGz creates a .tar.gz archive from the given entries.
func createTarGz(outputPath string, entries []archiveEntry) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, e := range entries {
		if err := addFileToTar(tarWriter, e); err != nil {
			return fmt.Errorf("add %s: %w", e.path, err)
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, e archiveEntry) error {
	file, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = e.name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

// extractTarGz restores the known entries of a backup archive. Anything else
// in the archive is skipped.
func extractTarGz(archivePath, dbPath, cfgPath string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		var target string
		switch name := header.Name; {
		case name == archiveDB:
			target = dbPath
		case name == archiveDB+"-wal":
			target = dbPath + "-wal"
		case name == archiveDB+"-shm":
			target = dbPath + "-shm"
		case strings.HasPrefix(name, archiveConfig+"."):
			target = cfgPath
		default:
			continue
		}

		if err := writeEntry(target, tarReader, header.FileInfo().Mode().Perm()); err != nil {
			return nil, err
		}
		restored = append(restored, target)
	}

	return restored, nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o600
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", target, err)
	}
	return out.Close()
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
