package items

import "strconv"

// specialFolders maps System.Environment.SpecialFolder values to names.
var specialFolders = map[int]string{
	0:  "Desktop",
	2:  "Programs",
	5:  "MyDocuments",
	6:  "Favorites",
	7:  "Startup",
	8:  "Recent",
	9:  "SendTo",
	11: "StartMenu",
	13: "MyMusic",
	14: "MyVideos",
	16: "DesktopDirectory",
	17: "MyComputer",
	19: "NetworkShortcuts",
	20: "Fonts",
	21: "Templates",
	22: "CommonStartMenu",
	23: "CommonPrograms",
	24: "CommonStartup",
	25: "CommonDesktopDirectory",
	26: "ApplicationData",
	27: "PrinterShortcuts",
	28: "LocalApplicationData",
	32: "InternetCache",
	33: "Cookies",
	34: "History",
	35: "CommonApplicationData",
	36: "Windows",
	37: "System",
	38: "ProgramFiles",
	39: "MyPictures",
	40: "UserProfile",
	41: "SystemX86",
	42: "ProgramFilesX86",
	43: "CommonProgramFiles",
	44: "CommonProgramFilesX86",
	45: "CommonTemplates",
	46: "CommonDocuments",
	47: "CommonAdminTools",
	48: "AdminTools",
	53: "CommonMusic",
	54: "CommonPictures",
	55: "CommonVideos",
	56: "Resources",
	57: "LocalizedResources",
	58: "CommonOemLinks",
	59: "CDBurning",
}

// FolderName returns the SpecialFolder name for v, or v in decimal.
func FolderName(v int) string {
	if name, ok := specialFolders[v]; ok {
		return name
	}
	return strconv.Itoa(v)
}
