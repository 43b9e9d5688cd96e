// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

//go:build linux

package config

// Default metadata directory is a relative hidden folder in the working
// directory so local development never needs elevated permissions.
// The variable is still a var so tests or advanced deployments can override it.
var MetadataDir = ".couchdb_meta" // created under CWD (see configureMetadataDir)
