// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const (
	// DefaultAzuriteImage is the Azure Storage emulator image.
	DefaultAzuriteImage = "mcr.microsoft.com/azure-storage/azurite:latest"

	// DefaultAzuriteBlobPort is the emulator's blob service port.
	DefaultAzuriteBlobPort = "10000/tcp"

	// Well-known development storage account published by the emulator.
	azuriteAccount = "devstoreaccount1"
	azuriteKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// AzuriteContainer is a running blob storage emulator.
type AzuriteContainer struct {
	testcontainers.Container
	ConnectionString string
}

// NewAzuriteContainer starts the blob service of the Azure Storage emulator.
func NewAzuriteContainer(ctx context.Context) (*AzuriteContainer, error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        DefaultAzuriteImage,
		ExposedPorts: []string{DefaultAzuriteBlobPort},
		Cmd:          []string{"azurite-blob", "--blobHost", "0.0.0.0", "--skipApiVersionCheck"},
		WaitingFor:   listeningOn(DefaultAzuriteBlobPort, 60*time.Second),
	}, DefaultAzuriteBlobPort)
	if err != nil {
		return nil, err
	}

	conn := fmt.Sprintf(
		"DefaultEndpointsProtocol=http;AccountName=%s;AccountKey=%s;BlobEndpoint=http://%s/%s;",
		azuriteAccount, azuriteKey, addr, azuriteAccount,
	)
	return &AzuriteContainer{Container: container, ConnectionString: conn}, nil
}
