package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthlab/heater-control/internal/pkg/aws"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the readings database to S3",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		serverConfig := buildServerConfig()

		fmt.Println("App name:", serverConfig.AppName)

		postgresClient, err := postgres.NewPostgresClient(serverConfig.PostgresURL)
		if err != nil {
			panic(err)
		}

		count, err := postgresClient.GetRowCount()
		if err != nil {
			panic(err)
		}

		fmt.Println("Row count:", count)

		rows, err := postgresClient.GetAllRows()
		if err != nil {
			panic(err)
		}

		awsClient, err := aws.NewClient(serverConfig)
		if err != nil {
			panic(err)
		}

		if err := awsClient.WriteBackupFile(rows); err != nil {
			panic(err)
		}

		if err := awsClient.UploadBackupFile(context.Background()); err != nil {
			panic(err)
		}

		fmt.Println("Backup uploaded to bucket:", serverConfig.S3Config.Bucket)
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
