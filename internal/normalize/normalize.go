// Package normalize maps the many spellings RAT families use for their
// configuration fields onto a common set of names.
package normalize

import "strings"

// aliases maps each canonical name to the spellings it replaces.
var aliases = []struct {
	canonical string
	names     []string
}{
	{"Hosts", []string{"HOSTS", "Hosts", "ServerIp", "hardcodedhosts", "PasteUrl"}},
	{"Ports", []string{"Port", "Ports", "ServerPort"}},
	{"Mutex", []string{"MTX", "MUTEX", "Mutex"}},
	{"Version", []string{"VERSION", "Version"}},
	{"Key", []string{"Key", "key", "EncryptionKey", "ENCRYPTIONKEY"}},
	{"Group", []string{"Group", "Groub", "GroupTag", "TAG"}},
}

// Canonicalize returns the canonical name for a field and, for host and port
// lists, the value split into its parts.
func Canonicalize(name string, value any) (string, any) {
	name = strings.ReplaceAll(name, "_", "")
	for _, a := range aliases {
		if contains(a.names, name) {
			name = a.canonical
			break
		}
	}
	if name != "Hosts" && name != "Ports" {
		return name, value
	}
	s, ok := value.(string)
	if !ok || s == "null" || s == "false" {
		return name, value
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return name, parts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// knownFieldNames are field names observed in unobfuscated builds.
var knownFieldNames = map[string]bool{}

func init() {
	for _, n := range []string{
		"AUTHKEY", "An_ti", "Anti", "Anti_Process", "BDOS", "BS_OD",
		"Certifi_cate", "Certificate", "DIRECTORY", "De_lay", "Delay",
		"DoStartup", "ENABLELOGGER", "EncryptionKey", "Groub", "Group",
		"HIDEFILE", "HIDEINSTALLSUBDIRECTORY", "HIDELOGDIRECTORY", "HOSTS",
		"Hos_ts", "Hosts", "Hw_id", "Hwid", "INSTALL", "INSTALLNAME",
		"In_stall", "Install", "InstallDir", "InstallFile", "InstallFolder",
		"InstallStr", "Install_File", "Install_Folder", "KEY", "Key",
		"LOGDIRECTORYNAME", "MTX", "MUTEX", "Mutex", "Paste_bin", "Pastebin",
		"PasteUrl", "Por_ts", "Port", "Ports", "RECONNECTDELAY", "SPL",
		"STARTUP", "STARTUPKEY", "Server_signa_ture", "ServerIp", "ServerPort",
		"Serversignature", "Sleep", "TAG", "USBNM", "UrlHost", "VERSION",
		"Ver_sion", "Version", "delay", "hardcodedhosts", "key", "mutex_string",
		"port", "startup_name",
	} {
		knownFieldNames[n] = true
	}
}

// IsKnownFieldName reports whether name appears in unobfuscated builds.
func IsKnownFieldName(name string) bool { return knownFieldNames[name] }

// KnownFieldNames returns the registry in no particular order.
func KnownFieldNames() []string {
	out := make([]string, 0, len(knownFieldNames))
	for n := range knownFieldNames {
		out = append(out, n)
	}
	return out
}
