/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package xrt

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"k8s.io/klog/v2"
)

// This file holds the search for the XRT library, common to the native driver implementations.

const (
	// XRTLibraryPathsEnv is the name of the environment variable that define the search paths for the XRT library.
	// It can be a ":" separated list of directories.
	XRTLibraryPathsEnv = "XRT_LIBRARY_PATH"

	// XilinxXRTEnv is the environment variable set by XRT's setup.sh with its installation root.
	XilinxXRTEnv = "XILINX_XRT"

	// DefaultXRTInstallation is where the XRT packages install the runtime.
	DefaultXRTInstallation = "/opt/xilinx/xrt"
)

// XRTLibraryNames are the names of the XRT library searched for, in order.
var XRTLibraryNames = []string{"libxrt_coreutil.so.2", "libxrt_coreutil.so"}

var (
	reLdConfInclude = regexp.MustCompile(`^\s*include\s*(.*)$`)
	reLdConfComment = regexp.MustCompile(`^\s*#`)
	reLdConfPath    = regexp.MustCompile(`^\s*(.+?)\s*$`)
)

// librarySearchPaths returns the directories where to search for the XRT library.
//
// If XRT_LIBRARY_PATH is set, only its directories are searched. Otherwise, it searches "${XILINX_XRT}/lib",
// "/opt/xilinx/xrt/lib", LD_LIBRARY_PATH and the directories listed in /etc/ld.so.conf, in that order.
func librarySearchPaths() []string {
	if xrtPaths, found := os.LookupEnv(XRTLibraryPathsEnv); found {
		return slices.DeleteFunc(strings.Split(xrtPaths, ":"), func(p string) bool {
			return p == "" // Remove empty paths.
		})
	}
	var paths []string
	if root := os.Getenv(XilinxXRTEnv); root != "" {
		paths = append(paths, filepath.Join(root, "lib"))
	}
	paths = append(paths, filepath.Join(DefaultXRTInstallation, "lib"))
	for _, ldPath := range strings.Split(os.Getenv("LD_LIBRARY_PATH"), ":") {
		if ldPath == "" || !path.IsAbs(ldPath) {
			// No empty or relative paths.
			continue
		}
		paths = append(paths, ldPath)
	}
	paths = loadLibraryPaths(paths, "/etc/ld.so.conf")
	return slices.Compact(paths)
}

// loadLibraryPaths appends the paths listed in a ld.so.conf formatted file, following its includes.
func loadLibraryPaths(paths []string, fileWithIncludes string) []string {
	klog.V(2).Infof("Loading paths for libraries from %q", fileWithIncludes)
	file, err := os.Open(fileWithIncludes)
	if err != nil {
		klog.Warningf("Failed to load paths for libraries from %q: %v", fileWithIncludes, err)
		return paths
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if parts := reLdConfInclude.FindStringSubmatch(line); len(parts) > 0 {
			pattern := parts[1]
			if !path.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(fileWithIncludes), pattern)
			}
			klog.V(2).Infof("loadLibraryPaths: include %q", pattern)
			files, err := filepath.Glob(pattern)
			if err != nil {
				klog.Warningf("Failed to load paths for libraries while expanding include entry %q: %v", pattern, err)
				continue
			}
			for _, includeFile := range files {
				paths = loadLibraryPaths(paths, includeFile)
			}

		} else if reLdConfComment.MatchString(line) {
			klog.V(2).Infof("loadLibraryPaths: comment %q", line)

		} else if parts := reLdConfPath.FindStringSubmatch(line); len(parts) > 0 {
			klog.V(2).Infof("loadLibraryPaths: path %q", parts[1])
			paths = append(paths, parts[1])

		} else if strings.TrimSpace(line) != "" {
			klog.V(2).Infof("loadLibraryPaths: cannot parse line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Warningf("Error while loading paths for libraries from %q: %v", fileWithIncludes, err)
	}
	return paths
}

// searchXRTLibrary returns the path to the first XRT library found in the search paths.
func searchXRTLibrary() (libPath string, found bool) {
	searchPaths := librarySearchPaths()
	for _, name := range XRTLibraryNames {
		for _, dir := range searchPaths {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			return candidate, true
		}
	}
	return "", false
}
