// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package initramfs builds the root file system image of the enclave. The
// image is a newc CPIO archive, optionally compressed, that contains the init
// program, the bridge binary, the boot configuration and the mount target
// skeleton.
package initramfs
